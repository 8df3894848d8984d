package bundling

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hwerrors "github.com/provide-io/flavor/go/hwpack/pkg/errors"
	"github.com/provide-io/flavor/go/hwpack/pkg/fileutil"
)

func TestEsbuildStandaloneBlock(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	entry := filepath.Join(src, "block_sensor.js")
	touch(t, entry, `import _ from 'lodash';
import Entry from 'entry';
import data from './data.json';
const helper = require('./helper');

Entry.registerBlocks(_.map(data.items, helper.double));
`)
	touch(t, filepath.Join(src, "helper.js"), "module.exports = { double: (x) => x * 2 };\n")
	touch(t, filepath.Join(src, "data.json"), `{"items": [1, 2, 3], "marker": "sensor-data-marker"}`)

	a := NewAdapter(NewEsbuildBundler(hclog.NewNullLogger()), filepath.Join(out, "unpacked"))
	bundle, err := a.BundleBlock(context.Background(), entry)
	require.NoError(t, err)

	data, err := os.ReadFile(bundle)
	require.NoError(t, err)
	code := string(data)

	assert.True(t, strings.HasPrefix(strings.TrimSpace(code), "(() => {"), "expected an IIFE, got:\n%s", code)
	assert.Contains(t, code, "module.exports = _;")
	assert.Contains(t, code, "globalThis.Entry")
	assert.Contains(t, code, "sensor-data-marker")
	assert.Contains(t, code, "x * 2")
	assert.NotContains(t, code, `require("lodash")`)
	assert.NotContains(t, code, `require("./helper")`)
}

func TestEsbuildBlockMixedHostImports(t *testing.T) {
	src := t.TempDir()
	entry := filepath.Join(src, "block_mixed.js")
	touch(t, entry, `import 'entry';
import Entry, { blocks } from 'entry';
import Host, * as ns from '@entrylabs/entry';

Entry.register(blocks, ns.hw, Host.version);
`)

	a := NewAdapter(NewEsbuildBundler(nil), t.TempDir())
	bundle, err := a.BundleBlock(context.Background(), entry)
	require.NoError(t, err)

	data, err := os.ReadFile(bundle)
	require.NoError(t, err)
	code := string(data)
	assert.Contains(t, code, "globalThis.Entry")
	assert.NotContains(t, code, `"entry"`)
	assert.NotContains(t, code, "@entrylabs/entry")
}

func TestEsbuildModuleInPlace(t *testing.T) {
	src := t.TempDir()
	entry := filepath.Join(src, "sensor-mod.js")
	touch(t, entry, `const BaseModule = require('./baseModule');
const SerialPort = require('serialport');
const { checksum } = require('./util');

class Sensor extends BaseModule {
    handle(data) { return checksum(data) + SerialPort.name; }
}
module.exports = new Sensor();
`)
	touch(t, filepath.Join(src, "util.js"), "exports.checksum = (d) => \"util-checksum-marker\" + d.length;\n")

	a := NewAdapter(NewEsbuildBundler(nil), t.TempDir())
	require.NoError(t, a.BundleModule(context.Background(), entry))

	data, err := os.ReadFile(entry)
	require.NoError(t, err)
	code := string(data)

	assert.Contains(t, code, `require("serialport")`, "package dependencies stay external")
	assert.Contains(t, code, "globalThis.BaseModule")
	assert.Contains(t, code, "util-checksum-marker", "local modules are inlined")
	assert.NotContains(t, code, `require("./util")`)
	assert.NotContains(t, code, `require("./baseModule")`)
}

func TestEsbuildFailuresLeaveNoOutput(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "syntax error", source: "const = ;\n"},
		{name: "unresolved import", source: "import x from './missing';\nconsole.log(x);\n"},
		{name: "transform failure", source: "import { a b } from 'entry';\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entry := filepath.Join(t.TempDir(), "block.js")
			touch(t, entry, tc.source)
			outDir := filepath.Join(t.TempDir(), "unpacked")

			a := NewAdapter(NewEsbuildBundler(nil), outDir)
			_, err := a.BundleBlock(context.Background(), entry)
			require.Error(t, err)
			assert.True(t, errors.Is(err, hwerrors.ErrBundle), "got %v", err)
			assert.False(t, fileutil.Exists(filepath.Join(outDir, "block.js")))
		})
	}
}

func TestEsbuildModuleFailureKeepsSource(t *testing.T) {
	entry := filepath.Join(t.TempDir(), "sensor-mod.js")
	source := "module.exports = {\n"
	touch(t, entry, source)

	err := NewAdapter(NewEsbuildBundler(nil), t.TempDir()).BundleModule(context.Background(), entry)
	require.True(t, errors.Is(err, hwerrors.ErrBundle), "got %v", err)

	data, readErr := os.ReadFile(entry)
	require.NoError(t, readErr)
	assert.Equal(t, source, string(data))
}

func TestEsbuildHonoursCancelledContext(t *testing.T) {
	entry := filepath.Join(t.TempDir(), "block.js")
	touch(t, entry, "console.log(1)\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewEsbuildBundler(nil).Bundle(ctx, Options{Entry: entry, Outfile: entry, Variant: Module})
	assert.ErrorIs(t, err, context.Canceled)
}
