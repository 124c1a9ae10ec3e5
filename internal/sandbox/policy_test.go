package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modePtr(m Mode) *Mode { return &m }

func TestSelectFullAutoDominates(t *testing.T) {
	explicit := []*Mode{nil, modePtr(ModeReadOnly), modePtr(ModeWorkspaceWrite), modePtr(ModeDangerFullAccess), modePtr("garbage")}
	for _, m := range explicit {
		p := Select(true, m)
		assert.Equal(t, KindFullAuto, p.Kind)
		assert.False(t, p.NetworkAccess)
		assert.False(t, p.AsksForApproval())
	}
}

func TestSelectExplicitAndDefault(t *testing.T) {
	tests := []struct {
		name    string
		mode    *Mode
		kind    Kind
		network bool
	}{
		{"default", nil, KindReadOnly, false},
		{"read-only", modePtr(ModeReadOnly), KindReadOnly, false},
		{"workspace-write", modePtr(ModeWorkspaceWrite), KindWorkspaceWrite, true},
		{"danger", modePtr(ModeDangerFullAccess), KindNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Select(false, tt.mode)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.network, p.NetworkAccess)
			assert.True(t, p.AsksForApproval())
		})
	}
}

func TestSelectNeverSilentlyUnconfined(t *testing.T) {
	assert.True(t, Select(false, nil).Confined())
	assert.True(t, Select(false, modePtr("unknown")).Confined())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Workspace-Write ")
	require.NoError(t, err)
	assert.Equal(t, ModeWorkspaceWrite, m)

	_, err = ParseMode("yolo")
	assert.Error(t, err)
}

func TestCanWrite(t *testing.T) {
	root := "/srv/project"
	outside := "/etc/passwd"

	ws := Select(false, modePtr(ModeWorkspaceWrite)).WithGrantRoot(root)
	assert.True(t, ws.CanWrite(filepath.Join(root, "src", "main.go")))
	assert.True(t, ws.CanWrite(root))
	assert.False(t, ws.CanWrite(outside))
	assert.False(t, ws.CanWrite(root+"-sibling/x"))

	ro := Select(false, nil).WithGrantRoot(root)
	assert.False(t, ro.CanWrite(filepath.Join(root, "x")))
	assert.Empty(t, ro.WritableRoots())

	none := Select(false, modePtr(ModeDangerFullAccess))
	assert.True(t, none.CanWrite(outside))
}

func TestWritableRootsIncludeExtras(t *testing.T) {
	extra := t.TempDir()
	p := Select(true, nil).WithGrantRoot("/work").WithExtraPaths(nil, []string{extra})
	roots := p.WritableRoots()
	assert.Equal(t, "/work", roots[0])
	assert.Contains(t, roots, filepath.Clean(os.TempDir()))
	assert.Contains(t, roots, extra)
}

func TestPolicyEncodeRoundTrip(t *testing.T) {
	p := Select(false, modePtr(ModeWorkspaceWrite)).WithGrantRoot("/work").WithExtraPaths([]string{"/opt"}, nil)
	s, err := p.Encode()
	require.NoError(t, err)
	assert.Contains(t, s, `"kind":"workspace-write"`)

	back, err := DecodePolicy(s)
	require.NoError(t, err)
	assert.Equal(t, p, back)

	_, err = DecodePolicy(`{"kind":"sideways"}`)
	assert.Error(t, err)
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "read-only, network denied", Select(false, nil).String())
	assert.Equal(t, "full-auto (/w), network denied", Select(true, nil).WithGrantRoot("/w").String())
}

func TestSeatbeltProfile(t *testing.T) {
	profile, params := SeatbeltProfile(Select(true, nil).WithGrantRoot("/work"))
	assert.True(t, strings.HasPrefix(profile, "(version 1)\n(deny default)"))
	assert.Contains(t, profile, `(subpath (param "WRITABLE_ROOT_0"))`)
	assert.NotContains(t, profile, "network-outbound")
	assert.Equal(t, "-DWRITABLE_ROOT_0=/work", params[0])

	profile, params = SeatbeltProfile(Select(false, modePtr(ModeDangerFullAccess)))
	assert.Contains(t, profile, "(allow network-outbound)")
	assert.Empty(t, params)

	profile, _ = SeatbeltProfile(Select(false, nil))
	assert.NotContains(t, profile, "file-write*")
}

func TestUnsupportedPlatformError(t *testing.T) {
	err := unsupported("landlock")
	assert.True(t, errors.Is(err, ErrUnsupportedPlatform))
	var upe *UnsupportedPlatformError
	require.True(t, errors.As(err, &upe))
	assert.Equal(t, runtime.GOOS, upe.GOOS)
	assert.Contains(t, err.Error(), "landlock")
}

func TestCommandForUnconfinedBypassesBackend(t *testing.T) {
	cmd, err := CommandFor(context.Background(), noBackend{}, []string{"echo", "hi"}, "/", Select(false, modePtr(ModeDangerFullAccess)))
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "hi"}, cmd.Args)
	assert.Equal(t, "/", cmd.Dir)
}

func TestCommandForConfinedWithoutBackendFails(t *testing.T) {
	_, err := CommandFor(context.Background(), noBackend{}, []string{"ls"}, "/", Select(false, nil))
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = CommandFor(context.Background(), nil, []string{"ls"}, "/", Select(false, nil))
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = CommandFor(context.Background(), noBackend{}, nil, "/", Select(false, nil))
	assert.Error(t, err)
}

func TestForHostPicksOneBackend(t *testing.T) {
	b := ForHost(Options{HelperPath: "/usr/local/bin/seeky"})
	switch runtime.GOOS {
	case "linux":
		assert.Equal(t, "landlock", b.Name())
	case "darwin":
		assert.Equal(t, "seatbelt", b.Name())
	default:
		assert.ErrorIs(t, b.Available(), ErrUnsupportedPlatform)
	}
}
