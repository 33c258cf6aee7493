/*
Package sandbox emulates the client side of a proxied window.

Each window of a page gets a CookieSandbox: the cookie jar its scripts see
through document.cookie, bound to the raw cookie document shared by every
window of the same proxy origin. A script write is recorded as a
client|window sync marker in that document and handed to the window's
windowsync.Coordinator, which carries it to every other window of the page.

Scripts run in a goja Runtime whose document.cookie accessor is backed by the
sandbox:

	rt, err := sandbox.NewRuntime(sb, sandbox.DefaultRuntimeConfig())
	res, err := rt.Execute(ctx, `document.cookie = "theme=dark"`)
	err = res.Wait(ctx) // every window has observed the write
*/
package sandbox
