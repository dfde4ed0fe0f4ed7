package bus

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const SockName = "control.sock"
const PidName = "tripscribe.pid"
const ProtoVer = "0.1"

// Control commands, one byte each followed by a newline. CmdRetry takes an optional
// chunk id after a space.
const (
	CmdToggle  byte = 't'
	CmdStatus  byte = 's'
	CmdVersion byte = 'v'
	CmdQueue   byte = 'u'
	CmdRetry   byte = 'r'
	CmdQuit    byte = 'q'
)

const replyTimeout = 10 * time.Second

// Dir returns ~/.cache/tripscribe, honoring XDG_CACHE_HOME.
func Dir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tripscribe"), nil
}

// ~/.cache/tripscribe/control.sock
func SockPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

// ~/.cache/tripscribe/tripscribe.pid
func PidPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

func Listen() (net.Listener, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	return ListenAt(sp)
}

func ListenAt(sp string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sp) // stale socket from last run
	return net.Listen("unix", sp)
}

func SendCommand(cmd byte) (string, error) {
	sp, err := SockPath()
	if err != nil {
		return "", err
	}
	return SendCommandAt(sp, cmd)
}

// SendRequest sends cmd with an argument to the default socket.
func SendRequest(cmd byte, arg string) (string, error) {
	sp, err := SockPath()
	if err != nil {
		return "", err
	}
	return SendRequestAt(sp, cmd, arg)
}

// SendCommandAt writes cmd to the socket at sp and returns the reply line without its newline.
func SendCommandAt(sp string, cmd byte) (string, error) {
	return SendRequestAt(sp, cmd, "")
}

// SendRequestAt is SendCommandAt with an argument. An empty arg sends the bare command.
func SendRequestAt(sp string, cmd byte, arg string) (string, error) {
	if strings.ContainsAny(arg, " \r\n") {
		return "", fmt.Errorf("invalid command argument %q", arg)
	}
	line := []byte{cmd}
	if arg != "" {
		line = append(line, ' ')
		line = append(line, arg...)
	}
	line = append(line, '\n')

	c, err := net.DialTimeout("unix", sp, time.Second)
	if err != nil {
		return "", fmt.Errorf("daemon not reachable at %s: %w", sp, err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(replyTimeout))

	if _, err := c.Write(line); err != nil {
		return "", err
	}

	resp, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(resp, "\n"), nil
}

// ReadCommand reads one command byte sent by SendCommand.
func ReadCommand(r *bufio.Reader) (byte, error) {
	cmd, _, err := ReadRequest(r)
	return cmd, err
}

// ReadRequest reads one command line and returns the command byte and its argument,
// which is empty for bare commands.
func ReadRequest(r *bufio.Reader) (byte, string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return 0, "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, "", fmt.Errorf("empty command")
	}
	return line[0], strings.TrimSpace(line[1:]), nil
}

func CheckExistingDaemon() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return CheckPidFile(pidPath)
}

// CheckPidFile returns an error when path names a live process. Missing, invalid and
// stale pid files are not errors.
func CheckPidFile(path string) error {
	pidData, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil || pid <= 0 {
		return nil // invalid pid file, assume stale
	}

	if !isProcessAlive(pid) {
		return nil
	}
	return fmt.Errorf("daemon already running with PID %d", pid)
}

func isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}

func CreatePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return WritePidFile(pidPath)
}

func WritePidFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func RemovePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return os.Remove(pidPath)
}
