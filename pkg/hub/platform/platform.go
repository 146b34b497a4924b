// Package platform wraps the host-OS operations behind the hub's internal
// actions: shell opens, synthesized typing, media keys, hotkeys and the
// clipboard.
//
// The hub invokes these fire-and-forget; failures are logged by callers,
// never fatal.
package platform

// MultimediaAction names a media key press.
type MultimediaAction string

const (
	MultimediaPlayPause     MultimediaAction = "PlayPause"
	MultimediaPlay          MultimediaAction = "Play"
	MultimediaPause         MultimediaAction = "Pause"
	MultimediaNextTrack     MultimediaAction = "NextTrack"
	MultimediaPreviousTrack MultimediaAction = "PreviousTrack"
	MultimediaVolumeUp      MultimediaAction = "VolumeUp"
	MultimediaVolumeDown    MultimediaAction = "VolumeDown"
	MultimediaMute          MultimediaAction = "Mute"
)

// Platform is the host-OS surface used by internal actions.
type Platform interface {
	// OpenURL opens a URL in the default browser.
	OpenURL(url string) error

	// OpenPath opens a file with its default application.
	OpenPath(path string) error

	// OpenFolder reveals a directory in the file manager.
	OpenFolder(path string) error

	// CloseProcess terminates running processes matching the executable path.
	CloseProcess(path string) error

	// TypeText synthesizes typing. Characters are sent as a batch; a
	// newline flushes the batch and then sends Enter. A 2 ms pause
	// separates sends.
	TypeText(text string) error

	// Multimedia presses a media key. Platforms without discrete
	// play/pause keys substitute PlayPause.
	Multimedia(action MultimediaAction) error

	// Hotkey presses the modifiers in order, clicks each key, then
	// releases the modifiers in order.
	Hotkey(modifiers, keys []string) error

	// SetClipboard writes text to the system clipboard.
	SetClipboard(text string) error
}

// New returns the platform implementation for the current OS.
func New() Platform {
	return newShellPlatform()
}

// Noop is a Platform that does nothing. Used by tests.
type Noop struct{}

func (Noop) OpenURL(string) error                    { return nil }
func (Noop) OpenPath(string) error                   { return nil }
func (Noop) OpenFolder(string) error                 { return nil }
func (Noop) CloseProcess(string) error               { return nil }
func (Noop) TypeText(string) error                   { return nil }
func (Noop) Multimedia(MultimediaAction) error       { return nil }
func (Noop) Hotkey([]string, []string) error         { return nil }
func (Noop) SetClipboard(string) error               { return nil }

// Recorder is a Platform that records invocations. Used by tests.
type Recorder struct {
	URLs       []string
	Paths      []string
	Folders    []string
	Closed     []string
	Typed      []string
	Media      []MultimediaAction
	Hotkeys    [][2][]string
	Clipboards []string
}

func (r *Recorder) OpenURL(url string) error        { r.URLs = append(r.URLs, url); return nil }
func (r *Recorder) OpenPath(path string) error      { r.Paths = append(r.Paths, path); return nil }
func (r *Recorder) OpenFolder(path string) error    { r.Folders = append(r.Folders, path); return nil }
func (r *Recorder) CloseProcess(path string) error  { r.Closed = append(r.Closed, path); return nil }
func (r *Recorder) TypeText(text string) error      { r.Typed = append(r.Typed, text); return nil }
func (r *Recorder) SetClipboard(text string) error  { r.Clipboards = append(r.Clipboards, text); return nil }
func (r *Recorder) Multimedia(a MultimediaAction) error {
	r.Media = append(r.Media, a)
	return nil
}
func (r *Recorder) Hotkey(modifiers, keys []string) error {
	r.Hotkeys = append(r.Hotkeys, [2][]string{modifiers, keys})
	return nil
}
