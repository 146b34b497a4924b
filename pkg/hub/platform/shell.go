package platform

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// typePause separates synthesized key sends so target applications keep up.
const typePause = 2 * time.Millisecond

// shellPlatform implements Platform by shelling out to the host's input
// and shell tooling. Per-OS command tables live below; unsupported
// operations return an error the caller logs.
type shellPlatform struct {
	goos string
}

func newShellPlatform() *shellPlatform {
	return &shellPlatform{goos: runtime.GOOS}
}

func (p *shellPlatform) OpenURL(url string) error {
	switch p.goos {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

func (p *shellPlatform) OpenPath(path string) error {
	switch p.goos {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}

func (p *shellPlatform) OpenFolder(path string) error {
	switch p.goos {
	case "darwin":
		return exec.Command("open", "-R", path).Start()
	case "windows":
		return exec.Command("explorer", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}

func (p *shellPlatform) CloseProcess(path string) error {
	switch p.goos {
	case "windows":
		return exec.Command("taskkill", "/F", "/IM", filepath.Base(path)).Run()
	default:
		return exec.Command("pkill", "-f", path).Run()
	}
}

func (p *shellPlatform) TypeText(text string) error {
	// A newline flushes the pending batch, then presses Enter.
	batches := strings.Split(text, "\n")
	for i, batch := range batches {
		if batch != "" {
			if err := p.typeBatch(batch); err != nil {
				return err
			}
			time.Sleep(typePause)
		}
		if i < len(batches)-1 {
			if err := p.pressKey("Return"); err != nil {
				return err
			}
			time.Sleep(typePause)
		}
	}
	return nil
}

func (p *shellPlatform) typeBatch(batch string) error {
	switch p.goos {
	case "darwin":
		script := fmt.Sprintf("tell application %q to keystroke %q", "System Events", batch)
		return exec.Command("osascript", "-e", script).Run()
	case "windows":
		script := fmt.Sprintf(
			"Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait(%q)", batch)
		return exec.Command("powershell", "-NoProfile", "-Command", script).Run()
	default:
		return exec.Command("xdotool", "type", "--delay", "0", "--", batch).Run()
	}
}

func (p *shellPlatform) pressKey(key string) error {
	switch p.goos {
	case "darwin":
		script := `tell application "System Events" to key code 36`
		return exec.Command("osascript", "-e", script).Run()
	case "windows":
		script := "Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait('{ENTER}')"
		return exec.Command("powershell", "-NoProfile", "-Command", script).Run()
	default:
		return exec.Command("xdotool", "key", "--", key).Run()
	}
}

// x11MediaKeys maps multimedia actions to XF86 key names.
var x11MediaKeys = map[MultimediaAction]string{
	MultimediaPlayPause:     "XF86AudioPlay",
	MultimediaNextTrack:     "XF86AudioNext",
	MultimediaPreviousTrack: "XF86AudioPrev",
	MultimediaVolumeUp:      "XF86AudioRaiseVolume",
	MultimediaVolumeDown:    "XF86AudioLowerVolume",
	MultimediaMute:          "XF86AudioMute",
}

func (p *shellPlatform) Multimedia(action MultimediaAction) error {
	// No mainstream desktop exposes discrete play/pause keys; fold both
	// into the toggle.
	if action == MultimediaPlay || action == MultimediaPause {
		action = MultimediaPlayPause
	}

	switch p.goos {
	case "darwin":
		return p.darwinMedia(action)
	case "windows":
		return p.windowsMedia(action)
	default:
		key, ok := x11MediaKeys[action]
		if !ok {
			return fmt.Errorf("unsupported multimedia action %q", action)
		}
		return exec.Command("xdotool", "key", "--", key).Run()
	}
}

func (p *shellPlatform) darwinMedia(action MultimediaAction) error {
	// Media keys map to NX key codes delivered via a small osascript shim.
	codes := map[MultimediaAction]int{
		MultimediaPlayPause:     16,
		MultimediaNextTrack:     17,
		MultimediaPreviousTrack: 18,
		MultimediaVolumeUp:      0,
		MultimediaVolumeDown:    1,
		MultimediaMute:          7,
	}
	code, ok := codes[action]
	if !ok {
		return fmt.Errorf("unsupported multimedia action %q", action)
	}
	script := fmt.Sprintf("tell application %q to key code %d", "System Events", code)
	return exec.Command("osascript", "-e", script).Run()
}

func (p *shellPlatform) windowsMedia(action MultimediaAction) error {
	// Virtual-key codes per the Win32 VK_MEDIA_*/VK_VOLUME_* table.
	codes := map[MultimediaAction]int{
		MultimediaPlayPause:     0xB3,
		MultimediaNextTrack:     0xB0,
		MultimediaPreviousTrack: 0xB1,
		MultimediaVolumeUp:      0xAF,
		MultimediaVolumeDown:    0xAE,
		MultimediaMute:          0xAD,
	}
	code, ok := codes[action]
	if !ok {
		return fmt.Errorf("unsupported multimedia action %q", action)
	}
	script := fmt.Sprintf(`$w = Add-Type -MemberDefinition '[DllImport("user32.dll")] public static extern void keybd_event(byte bVk, byte bScan, int dwFlags, int dwExtraInfo);' -Name K -PassThru; $w::keybd_event(%d,0,0,0); $w::keybd_event(%d,0,2,0)`, code, code)
	return exec.Command("powershell", "-NoProfile", "-Command", script).Run()
}

func (p *shellPlatform) Hotkey(modifiers, keys []string) error {
	switch p.goos {
	case "darwin", "windows":
		// Combined chord; ordered press/release is an X11 refinement.
		combo := strings.Join(append(append([]string{}, modifiers...), keys...), "+")
		if p.goos == "windows" {
			script := fmt.Sprintf(
				"Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait(%q)", combo)
			return exec.Command("powershell", "-NoProfile", "-Command", script).Run()
		}
		script := fmt.Sprintf("tell application %q to keystroke %q", "System Events", combo)
		return exec.Command("osascript", "-e", script).Run()
	default:
		for _, m := range modifiers {
			if err := exec.Command("xdotool", "keydown", "--", m).Run(); err != nil {
				return err
			}
		}
		for _, k := range keys {
			if err := exec.Command("xdotool", "key", "--", k).Run(); err != nil {
				return err
			}
		}
		// Release in the same order they were pressed.
		for _, m := range modifiers {
			if err := exec.Command("xdotool", "keyup", "--", m).Run(); err != nil {
				return err
			}
		}
		return nil
	}
}

func (p *shellPlatform) SetClipboard(text string) error {
	var cmd *exec.Cmd
	switch p.goos {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "windows":
		cmd = exec.Command("cmd", "/c", "clip")
	default:
		cmd = exec.Command("xclip", "-selection", "clipboard")
	}
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
