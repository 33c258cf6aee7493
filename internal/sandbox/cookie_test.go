package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/GriffinCanCode/crossframe/internal/cookie"
	"github.com/GriffinCanCode/crossframe/internal/frame"
	"github.com/GriffinCanCode/crossframe/internal/messaging"
	"github.com/GriffinCanCode/crossframe/internal/windowsync"
)

const (
	sid     = "sess1"
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type env struct {
	bus   *messaging.Bus
	clock *testingclock.FakeClock
	docs  map[string]*cookie.Document
}

func newEnv() *env {
	return &env{
		bus:   messaging.NewBus(nil, nil),
		clock: testingclock.NewFakeClock(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
		docs:  make(map[string]*cookie.Document),
	}
}

// attach creates a sandbox for win sharing one document per origin
func (e *env) attach(win *frame.Window) *CookieSandbox {
	doc, ok := e.docs[win.Origin()]
	if !ok {
		doc = cookie.NewDocument(e.clock)
		e.docs[win.Origin()] = doc
	}
	sb := NewCookieSandbox(sid, e.bus.Port(win), windowsync.Config{Clock: e.clock})
	sb.Attach(win, doc)
	return sb
}

func TestSetCookieRequiresAttach(t *testing.T) {
	sb := NewCookieSandbox(sid, messaging.NewBus(nil, nil).Port(frame.NewTop("top", "https://a.example")), windowsync.Config{})

	_, err := sb.SetCookie("a=1")
	assert.ErrorIs(t, err, ErrNotAttached)
	assert.False(t, sb.Ready())
	assert.Nil(t, sb.Document())
}

func TestSetCookieWritesMarkerAndJar(t *testing.T) {
	e := newEnv()
	top := frame.NewTop("top", "https://app.example.com")
	sb := e.attach(top)

	done, err := sb.SetCookie("theme=dark")
	require.NoError(t, err)
	<-done

	assert.Equal(t, "theme=dark", sb.Cookie())

	markers := cookie.ParseSyncCookies(sb.Document().Cookie())
	require.Len(t, markers, 1)
	assert.Equal(t, cookie.SyncClient, markers[0].SyncType, "window flag cleared after the batch")
	assert.Equal(t, "app.example.com", markers[0].Domain)
	assert.Equal(t, "/", markers[0].Path)
	assert.Equal(t, sid, markers[0].SID)
	assert.Equal(t, e.clock.Now().UnixMilli(), markers[0].LastAccessed.UnixMilli())
}

func TestSetCookieRejects(t *testing.T) {
	e := newEnv()
	sb := e.attach(frame.NewTop("top", "https://app.example.com"))

	_, err := sb.SetCookie("no equals sign")
	assert.ErrorIs(t, err, ErrInvalidCookie)

	_, err = sb.SetCookie("a=1; Domain=other.example")
	assert.ErrorIs(t, err, ErrForeignDomain)

	assert.Empty(t, sb.Cookie())
}

func TestSetCookieExpiry(t *testing.T) {
	e := newEnv()
	sb := e.attach(frame.NewTop("top", "https://app.example.com"))

	_, err := sb.SetCookie("short=1; Max-Age=60")
	require.NoError(t, err)
	_, err = sb.SetCookie("long=2")
	require.NoError(t, err)
	assert.Equal(t, "short=1; long=2", sb.Cookie())

	e.clock.Step(2 * time.Minute)
	assert.Equal(t, "long=2", sb.Cookie())

	_, err = sb.SetCookie("long=; Max-Age=0")
	require.NoError(t, err)
	_, err = sb.SetCookie("long=2; Max-Age=-1")
	require.NoError(t, err)
	assert.Empty(t, sb.Cookie())
}

func TestSameOriginFramesConverge(t *testing.T) {
	e := newEnv()
	top := frame.NewTop("top", "https://app.example.com")
	child := top.AppendFrame("child", "https://app.example.com")
	grandchild := child.AppendFrame("grandchild", "https://app.example.com")

	topSB := e.attach(top)
	childSB := e.attach(child)
	grandSB := e.attach(grandchild)

	done, err := grandSB.SetCookie("lang=en")
	require.NoError(t, err)
	<-done

	assert.Equal(t, "lang=en", topSB.Cookie())
	assert.Equal(t, "lang=en", childSB.Cookie())
	assert.Equal(t, "lang=en", grandSB.Cookie())

	markers := cookie.ParseSyncCookies(topSB.Document().Cookie())
	require.Len(t, markers, 1)
	assert.False(t, markers[0].IsWindowSync())
	assert.True(t, markers[0].IsClientSync())
}

func TestSameOriginFramesConvergeWithBrowserValues(t *testing.T) {
	e := newEnv()
	top := frame.NewTop("top", "https://app.example.com")
	child := top.AppendFrame("child", "https://app.example.com")

	topSB := e.attach(top)
	childSB := e.attach(child)

	writes := []string{`prefs={"theme":"dark"}`, "name=Zoë", `dir=C:\tmp`}
	for _, w := range writes {
		done, err := childSB.SetCookie(w)
		require.NoError(t, err, w)
		<-done
	}

	want := `prefs={"theme":"dark"}; name=Zoë; dir=C:\tmp`
	assert.Equal(t, want, childSB.Cookie())
	assert.Equal(t, want, topSB.Cookie())

	markers := cookie.ParseSyncCookies(topSB.Document().Cookie())
	require.Len(t, markers, 3)
	assert.Equal(t, `{"theme":"dark"}`, markers[0].Value)
	assert.Equal(t, "Zoë", markers[1].Value)
	assert.Equal(t, `C:\tmp`, markers[2].Value)
}

func TestCrossOriginFrameConvergesByMessage(t *testing.T) {
	e := newEnv()
	top := frame.NewTop("top", "https://app.example.com")
	cdn := top.AppendFrame("cdn", "https://cdn.example.com")

	topSB := e.attach(top)
	cdnSB := e.attach(cdn)

	done, err := topSB.SetCookie("shared=1; Domain=example.com")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("cross-origin frame did not acknowledge")
	}
	assert.Equal(t, "shared=1", cdnSB.Cookie())

	_, err = cdnSB.SetCookie("back=2; Domain=example.com")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return topSB.Cookie() == "shared=1; back=2"
	}, waitFor, tick)
}

func TestSyncWindowCookieFilters(t *testing.T) {
	e := newEnv()
	sb := e.attach(frame.NewTop("top", "https://app.example.com"))
	now := e.clock.Now()

	sb.SyncWindowCookie([]cookie.ParsedCookie{
		{SID: sid, Key: "mine", Value: "1", Domain: "app.example.com", Path: "/", LastAccessed: now},
		{SID: sid, Key: "parent", Value: "2", Domain: "example.com", Path: "/", LastAccessed: now},
		{SID: "other", Key: "foreign-session", Value: "3", Domain: "app.example.com", Path: "/", LastAccessed: now},
		{SID: sid, Key: "foreign-domain", Value: "4", Domain: "other.example", Path: "/", LastAccessed: now},
	})

	assert.Equal(t, "mine=1; parent=2", sb.Cookie())

	sb.SyncWindowCookie([]cookie.ParsedCookie{
		{SID: sid, Key: "mine", Value: "stale", Domain: "app.example.com", Path: "/", LastAccessed: now.Add(-time.Hour)},
		{SID: sid, Key: "parent", Domain: "example.com", Path: "/", Expires: now.Add(-time.Second), LastAccessed: now},
	})

	assert.Equal(t, "mine=1", sb.Cookie())
}

func TestSyncWindowCookieDropsOutdatedMarkers(t *testing.T) {
	e := newEnv()
	sb := e.attach(frame.NewTop("top", "https://app.example.com"))
	now := e.clock.Now()

	older := cookie.ParsedCookie{
		SID: sid, Key: "k", Value: "old", Domain: "app.example.com", Path: "/",
		LastAccessed: now.Add(-time.Minute), SyncType: cookie.SyncClient,
	}.WithSyncKey()
	newer := older
	newer.Value = "new"
	newer.LastAccessed = now
	newer = newer.WithSyncKey()

	doc := sb.Document()
	doc.SetCookie(cookie.FormatSyncCookie(older))
	doc.SetCookie(cookie.FormatSyncCookie(newer))

	sb.SyncWindowCookie(nil)

	assert.False(t, cookie.IsSyncCookieExists(older, doc.Cookie()))
	assert.True(t, cookie.IsSyncCookieExists(newer, doc.Cookie()))
}

func TestSandboxIsWindowHandle(t *testing.T) {
	e := newEnv()
	top := frame.NewTop("top", "https://app.example.com")
	sb := e.attach(top)

	h, r := windowsync.DefaultProbe(nil, top)
	require.Equal(t, frame.Reachable, r)
	assert.Same(t, sb, h)
	assert.Same(t, sb.WindowSync(), h.WindowSync())

	child := top.AppendFrame("child", "https://app.example.com")
	childSB := e.attach(child)
	child.Remove()

	assert.False(t, childSB.Ready())
}

func TestDomainMatch(t *testing.T) {
	tests := []struct {
		host, domain string
		want         bool
	}{
		{"app.example.com", "", true},
		{"app.example.com", "app.example.com", true},
		{"app.example.com", "example.com", true},
		{"app.example.com", ".example.com", true},
		{"APP.example.com", "Example.COM", true},
		{"example.com", "app.example.com", false},
		{"badexample.com", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.host+"/"+tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, domainMatch(tt.host, tt.domain))
		})
	}
}
