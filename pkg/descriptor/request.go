package descriptor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
)

// CompressionRequest identifies one packaging run. It is not modified while
// the run is in progress.
type CompressionRequest struct {
	// ModuleName is the archive base name and the controller script's stem.
	ModuleName string `json:"moduleName" validate:"required,modulename"`
	// Version is stamped into the descriptor and the manifest.
	Version string `json:"version" validate:"required,moduleversion"`
	// HardwareConfigPath is the descriptor file. Its directory is the
	// module source root.
	HardwareConfigPath string `json:"hardwareConfigPath" validate:"required"`
	// BlockFilePath is the block-definition entry script.
	BlockFilePath string `json:"blockFilePath" validate:"required"`
}

// ModuleRoot is the directory holding the descriptor and the controller.
func (r CompressionRequest) ModuleRoot() string {
	return filepath.Dir(r.HardwareConfigPath)
}

// ControllerPath is the controller script sibling of the descriptor, named
// after the module with the given extension (".js" when empty).
func (r CompressionRequest) ControllerPath(ext string) string {
	if ext == "" {
		ext = ".js"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(r.ModuleRoot(), r.ModuleName+ext)
}

// ArchiveName is the file name of both the hardware archive and the final
// module archive.
func (r CompressionRequest) ArchiveName() string {
	return r.ModuleName + ".zip"
}

// BlockFileName is the base name the block bundle is written under.
func (r CompressionRequest) BlockFileName() string {
	return filepath.Base(r.BlockFilePath)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("modulename", func(fl validator.FieldLevel) bool {
			name := fl.Field().String()
			return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
		})
		_ = validate.RegisterValidation("moduleversion", func(fl validator.FieldLevel) bool {
			_, err := semver.NewVersion(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Validate checks the request before any filesystem work happens.
func (r CompressionRequest) Validate() error {
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", hwerrors.ErrInvalidRequest, err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		case "modulename":
			problems = append(problems, fmt.Sprintf("%s %q must be a plain file name", fe.Field(), fe.Value()))
		case "moduleversion":
			problems = append(problems, fmt.Sprintf("%s %q is not a semantic version", fe.Field(), fe.Value()))
		default:
			problems = append(problems, fe.Error())
		}
	}
	return fmt.Errorf("%w: %s", hwerrors.ErrInvalidRequest, strings.Join(problems, "; "))
}
