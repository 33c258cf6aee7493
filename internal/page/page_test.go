package page

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/crossframe/internal/cookie"
	"github.com/GriffinCanCode/crossframe/internal/windowsync"
)

const scenarioYAML = `
session: sess1
top:
  name: top
  origin: https://app.example.com
  frames:
    - name: same
      origin: https://app.example.com
      frames:
        - name: nested
          origin: https://app.example.com
    - name: cdn
      origin: https://cdn.example.com
    - name: remote
      origin: https://widgets.example.com
      remote: true
`

const scenarioTOML = `
session = "sess1"

[top]
name = "top"
origin = "https://app.example.com"

[[top.frames]]
name = "cdn"
origin = "https://cdn.example.com"
`

func newPage(t *testing.T, data, format string) *Page {
	t.Helper()
	sc, err := ParseScenario([]byte(data), format)
	require.NoError(t, err)

	p, err := New(sc, Config{Sync: windowsync.Config{MessageTimeout: 20 * time.Millisecond}})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func cookiesByName(p *Page) map[string]string {
	out := make(map[string]string)
	for _, st := range p.Windows() {
		if !st.Remote {
			out[st.Name] = st.Cookie
		}
	}
	return out
}

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(scenarioYAML), "yaml")
	require.NoError(t, err)
	assert.Equal(t, "sess1", sc.Session)
	require.Len(t, sc.Top.Frames, 3)
	assert.Equal(t, "nested", sc.Top.Frames[0].Frames[0].Name)
	assert.True(t, sc.Top.Frames[2].Remote)

	sc, err = ParseScenario([]byte(scenarioTOML), "toml")
	require.NoError(t, err)
	require.Len(t, sc.Top.Frames, 1)
	assert.Equal(t, "https://cdn.example.com", sc.Top.Frames[0].Origin)
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
	}{
		{"unknown format", scenarioYAML, "ini"},
		{"broken yaml", "top: [", "yaml"},
		{"missing origin", "top:\n  name: top\n", "yaml"},
		{"duplicate names", "top:\n  origin: https://a.example\n  frames:\n    - name: top\n      origin: https://a.example\n", "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestFromHTML(t *testing.T) {
	html := `<html><body>
		<iframe name="ads" src="https://ads.example.net/banner?x=1"></iframe>
		<iframe id="local" src="/widget.html"></iframe>
		<iframe srcdoc="<iframe name='inner' src='https://cdn.example.com/x'></iframe><iframe></iframe>"></iframe>
		<iframe name="bridge" src="https://widgets.example.com" data-remote></iframe>
	</body></html>`

	frames, err := FromHTML(html, "https://app.example.com")
	require.NoError(t, err)
	require.Len(t, frames, 4)

	assert.Equal(t, FrameSpec{Name: "ads", Origin: "https://ads.example.net"}, frames[0])
	assert.Equal(t, FrameSpec{Name: "local", Origin: "https://app.example.com"}, frames[1])

	assert.Equal(t, "frame-2", frames[2].Name)
	assert.Equal(t, "https://app.example.com", frames[2].Origin)
	require.Len(t, frames[2].Frames, 2)
	assert.Equal(t, FrameSpec{Name: "inner", Origin: "https://cdn.example.com"}, frames[2].Frames[0])
	assert.Equal(t, "frame-2-1", frames[2].Frames[1].Name)

	assert.True(t, frames[3].Remote)
}

func TestLoadScenarioFromFiles(t *testing.T) {
	dir := t.TempDir()

	htmlPath := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(htmlPath, []byte(`<iframe name="f" src="https://b.example"></iframe>`), 0o644))
	sc, err := LoadScenario(htmlPath, "https://a.example")
	require.NoError(t, err)

	p, err := New(sc, Config{})
	require.NoError(t, err)
	defer p.Close()
	win, err := p.Find("f")
	require.NoError(t, err)
	assert.Equal(t, "https://b.example", win.Origin())

	tomlPath := filepath.Join(dir, "page.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(scenarioTOML), 0o644))
	sc, err = LoadScenario(tomlPath, "")
	require.NoError(t, err)
	assert.Equal(t, "sess1", sc.Session)

	_, err = LoadScenario(filepath.Join(dir, "missing.yaml"), "")
	assert.Error(t, err)
}

func TestPageConvergence(t *testing.T) {
	p := newPage(t, scenarioYAML, "yaml")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.SetCookie(ctx, "nested", "theme=dark"))

	cookies := cookiesByName(p)
	assert.Equal(t, "theme=dark", cookies["top"])
	assert.Equal(t, "theme=dark", cookies["same"])
	assert.Equal(t, "theme=dark", cookies["nested"])
	assert.Empty(t, cookies["cdn"], "host-only cookie stays on its host")

	require.NoError(t, p.SetCookie(ctx, "top", "shared=1; Domain=example.com"))
	assert.Equal(t, "shared=1", cookiesByName(p)["cdn"])
}

func TestPageSharesDocumentsPerOrigin(t *testing.T) {
	p := newPage(t, scenarioYAML, "yaml")

	top, _ := p.Sandbox(p.Top())
	sameWin, err := p.Find("same")
	require.NoError(t, err)
	same, _ := p.Sandbox(sameWin)
	cdnWin, err := p.Find("cdn")
	require.NoError(t, err)
	cdn, _ := p.Sandbox(cdnWin)

	assert.Same(t, top.Document(), same.Document())
	assert.NotSame(t, top.Document(), cdn.Document())

	require.NoError(t, p.SetCookie(context.Background(), "same", "k=v"))
	markers := cookie.ParseSyncCookies(top.Document().Cookie())
	require.Len(t, markers, 1)
	assert.Equal(t, cookie.SyncClient, markers[0].SyncType)
}

func TestPageRemoteAndMissingFrames(t *testing.T) {
	p := newPage(t, scenarioYAML, "yaml")

	_, err := p.Eval(context.Background(), "remote", "1")
	assert.ErrorIs(t, err, ErrRemoteFrame)

	_, err = p.Eval(context.Background(), "nope", "1")
	assert.ErrorIs(t, err, ErrFrameNotFound)

	remote, err := p.Find("remote")
	require.NoError(t, err)
	_, ok := p.Sandbox(remote)
	assert.False(t, ok)
}

func TestPageRemoveResolvesPendingSync(t *testing.T) {
	sc, err := ParseScenario([]byte(scenarioYAML), "yaml")
	require.NoError(t, err)
	// long timeouts: only the removal can end the wait on the remote frame
	p, err := New(sc, Config{Sync: windowsync.Config{MessageTimeout: time.Hour}})
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Eval(context.Background(), "top", `document.cookie = "a=1"`)
	require.NoError(t, err)
	require.Len(t, res.Syncs, 1)

	select {
	case <-res.Syncs[0]:
		t.Fatal("batch finished while the remote frame is still attached")
	case <-time.After(50 * time.Millisecond):
	}

	remote, err := p.Find("remote")
	require.NoError(t, err)
	p.Remove(remote)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, res.Wait(ctx))

	_, err = p.Find("remote")
	assert.ErrorIs(t, err, ErrFrameNotFound)
}

func TestAppendFrameAfterLoad(t *testing.T) {
	p := newPage(t, scenarioTOML, "toml")

	win, err := p.AppendFrame(p.Top(), FrameSpec{Name: "late", Origin: "https://app.example.com"})
	require.NoError(t, err)
	_, ok := p.Sandbox(win)
	assert.True(t, ok)

	_, err = p.AppendFrame(p.Top(), FrameSpec{Name: "late", Origin: "https://app.example.com"})
	assert.ErrorIs(t, err, ErrDuplicateFrame)

	blank, err := p.AppendFrame(win, FrameSpec{Name: "blank"})
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", blank.Origin())

	_, err = p.AppendFrame(p.Top(), FrameSpec{})
	assert.Error(t, err)

	require.NoError(t, p.SetCookie(context.Background(), "top", "x=1"))
	assert.Equal(t, "x=1", cookiesByName(p)["late"])
	assert.Equal(t, "x=1", cookiesByName(p)["blank"])
}
