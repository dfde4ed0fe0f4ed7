package bus

import (
	"bufio"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestPidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", PidName)

	t.Run("no pid file", func(t *testing.T) {
		if err := CheckPidFile(path); err != nil {
			t.Errorf("CheckPidFile should not error when no PID file exists: %v", err)
		}
	})

	t.Run("write creates parent and stores pid", func(t *testing.T) {
		if err := WritePidFile(path); err != nil {
			t.Fatalf("WritePidFile: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read pid file: %v", err)
		}
		if string(data) != strconv.Itoa(os.Getpid()) {
			t.Errorf("pid file = %q, want %d", data, os.Getpid())
		}
	})

	t.Run("current process is reported as running", func(t *testing.T) {
		err := CheckPidFile(path)
		if err == nil || !strings.Contains(err.Error(), "already running") {
			t.Errorf("expected already running error, got %v", err)
		}
	})

	t.Run("invalid content is stale", func(t *testing.T) {
		if err := os.WriteFile(path, []byte("not-a-pid"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := CheckPidFile(path); err != nil {
			t.Errorf("invalid pid should be treated as stale: %v", err)
		}
	})

	t.Run("exited process is stale", func(t *testing.T) {
		cmd := exec.Command("true")
		if err := cmd.Run(); err != nil {
			t.Skipf("cannot run true: %v", err)
		}
		pid := cmd.ProcessState.Pid()
		if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := CheckPidFile(path); err != nil {
			t.Errorf("dead pid should be treated as stale: %v", err)
		}
	})
}

func TestIsProcessAlive(t *testing.T) {
	if !isProcessAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if isProcessAlive(999999999) {
		t.Error("absurd pid should not be alive")
	}
}

func TestSendCommandAt(t *testing.T) {
	sp := filepath.Join(t.TempDir(), SockName)
	l, err := ListenAt(sp)
	if err != nil {
		t.Fatalf("ListenAt: %v", err)
	}
	defer l.Close()

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				cmd, err := ReadCommand(bufio.NewReader(c))
				if err != nil {
					return
				}
				c.Write([]byte("ok " + string(cmd) + "\n"))
			}(conn)
		}
	}()

	for _, cmd := range []byte{CmdToggle, CmdStatus, CmdVersion, CmdQueue, CmdRetry, CmdQuit} {
		resp, err := SendCommandAt(sp, cmd)
		if err != nil {
			t.Fatalf("SendCommandAt(%q): %v", cmd, err)
		}
		if want := "ok " + string(cmd); resp != want {
			t.Errorf("reply = %q, want %q", resp, want)
		}
	}
}

func TestSendRequestAt(t *testing.T) {
	sp := filepath.Join(t.TempDir(), SockName)
	l, err := ListenAt(sp)
	if err != nil {
		t.Fatalf("ListenAt: %v", err)
	}
	defer l.Close()

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				cmd, arg, err := ReadRequest(bufio.NewReader(c))
				if err != nil {
					return
				}
				c.Write([]byte(string(cmd) + "=" + arg + "\n"))
			}(conn)
		}
	}()

	resp, err := SendRequestAt(sp, CmdRetry, "3f2a-item")
	if err != nil {
		t.Fatalf("SendRequestAt: %v", err)
	}
	if resp != "r=3f2a-item" {
		t.Errorf("reply = %q, want %q", resp, "r=3f2a-item")
	}

	resp, err = SendRequestAt(sp, CmdRetry, "")
	if err != nil {
		t.Fatalf("SendRequestAt without argument: %v", err)
	}
	if resp != "r=" {
		t.Errorf("reply = %q, want %q", resp, "r=")
	}

	if _, err := SendRequestAt(sp, CmdRetry, "a\nq"); err == nil {
		t.Error("expected an error for an argument with a newline")
	}
}

func TestListenAtReplacesStaleSocket(t *testing.T) {
	sp := filepath.Join(t.TempDir(), SockName)
	if err := os.WriteFile(sp, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := ListenAt(sp)
	if err != nil {
		t.Fatalf("ListenAt over stale file: %v", err)
	}
	l.Close()
}

func TestSendCommandAtNoDaemon(t *testing.T) {
	_, err := SendCommandAt(filepath.Join(t.TempDir(), SockName), CmdStatus)
	if err == nil || !strings.Contains(err.Error(), "daemon not reachable") {
		t.Errorf("expected unreachable error, got %v", err)
	}
}

func TestReadCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    byte
		wantErr bool
	}{
		{"t\n", 't', false},
		{"s", 's', false},
		{"  q \n", 'q', false},
		{"\n", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ReadCommand(bufio.NewReader(strings.NewReader(tt.in)))
		if (err != nil) != tt.wantErr {
			t.Errorf("ReadCommand(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadRequest(t *testing.T) {
	tests := []struct {
		in      string
		cmd     byte
		arg     string
		wantErr bool
	}{
		{"r\n", 'r', "", false},
		{"r 9b1c\n", 'r', "9b1c", false},
		{"r   9b1c  \n", 'r', "9b1c", false},
		{"\n", 0, "", true},
	}
	for _, tt := range tests {
		cmd, arg, err := ReadRequest(bufio.NewReader(strings.NewReader(tt.in)))
		if (err != nil) != tt.wantErr {
			t.Errorf("ReadRequest(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if cmd != tt.cmd || arg != tt.arg {
			t.Errorf("ReadRequest(%q) = %q %q, want %q %q", tt.in, cmd, arg, tt.cmd, tt.arg)
		}
	}
}

func TestPathFunctions(t *testing.T) {
	cache := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cache)

	sp, err := SockPath()
	if err != nil {
		t.Fatalf("SockPath: %v", err)
	}
	if want := filepath.Join(cache, "tripscribe", SockName); sp != want {
		t.Errorf("SockPath = %q, want %q", sp, want)
	}

	pp, err := PidPath()
	if err != nil {
		t.Fatalf("PidPath: %v", err)
	}
	if want := filepath.Join(cache, "tripscribe", PidName); pp != want {
		t.Errorf("PidPath = %q, want %q", pp, want)
	}
}

func TestPublicAPIWithTempDirs(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	if err := CheckExistingDaemon(); err != nil {
		t.Fatalf("CheckExistingDaemon on empty cache: %v", err)
	}
	if err := CreatePidFile(); err != nil {
		t.Fatalf("CreatePidFile: %v", err)
	}
	if err := CheckExistingDaemon(); err == nil {
		t.Error("expected running daemon after CreatePidFile")
	}
	if err := RemovePidFile(); err != nil {
		t.Fatalf("RemovePidFile: %v", err)
	}

	l, err := Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	l.Close()
}
