package packager

import "fmt"

// Stage identifies a step of a packaging run.
type Stage int

const (
	StageValidateRequest Stage = iota
	StageLoadDescriptor
	StageClearWorkspace
	StageBundleBlock
	StageCopyIcon
	StageNormalizeDescriptor
	StageBundleController
	StageDelegateHardwareCompress
	StageWriteManifest
	StageFinalizeArchive
	StageDone
)

var stageNames = map[Stage]string{
	StageValidateRequest:          "ValidateRequest",
	StageLoadDescriptor:           "LoadDescriptor",
	StageClearWorkspace:           "ClearWorkspace",
	StageBundleBlock:              "BundleBlock",
	StageCopyIcon:                 "CopyIcon",
	StageNormalizeDescriptor:      "NormalizeDescriptor",
	StageBundleController:         "BundleController",
	StageDelegateHardwareCompress: "DelegateHardwareCompress",
	StageWriteManifest:            "WriteManifest",
	StageFinalizeArchive:          "FinalizeArchive",
	StageDone:                     "Done",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}
