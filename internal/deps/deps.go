package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// Status represents the installation status of a dependency
type Status struct {
	Name      string
	Purpose   string
	Required  bool
	Installed bool
	Path      string
	Version   string
}

// Binary is an external program tripscribe runs.
type Binary struct {
	Name        string
	VersionArgs []string
	Purpose     string
	Required    bool
}

// Binaries lists the programs used for capture, local transcription and notifications.
var Binaries = []Binary{
	{Name: "pw-record", VersionArgs: []string{"--version"}, Purpose: "audio capture", Required: true},
	{Name: "whisper-cli", VersionArgs: []string{"--version"}, Purpose: "local engine"},
	{Name: "notify-send", VersionArgs: []string{"--version"}, Purpose: "desktop notifications"},
}

// Check looks b up in PATH and reads the first line of its version output.
func Check(b Binary) Status {
	status := Status{Name: b.Name, Purpose: b.Purpose, Required: b.Required}

	path, err := exec.LookPath(b.Name)
	if err != nil {
		return status
	}
	status.Installed = true
	status.Path = path

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, b.VersionArgs...).CombinedOutput()
	if err == nil {
		// parse first line as version
		line, _, _ := strings.Cut(string(output), "\n")
		status.Version = strings.TrimSpace(line)
	}
	return status
}

// CheckAll checks every entry of Binaries.
func CheckAll() []Status {
	out := make([]Status, 0, len(Binaries))
	for _, b := range Binaries {
		out = append(out, Check(b))
	}
	return out
}

// MissingRequired returns the names of required binaries that are not installed.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if s.Required && !s.Installed {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
