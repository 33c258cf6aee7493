// Package http serves the control API of a loaded page: listing windows,
// writing cookies through a frame's document.cookie, running scripts,
// appending and removing frames, and attaching remote windows over WebSocket.
package http
