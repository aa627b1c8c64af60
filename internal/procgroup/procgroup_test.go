//go:build !windows

package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func newContainer(t *testing.T) *Container {
	t.Helper()
	c, err := New(Options{})
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	t.Cleanup(func() { _ = c.Destroy() })
	return c
}

func startJoined(t *testing.T, c *Container, script string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", script)
	c.Prepare(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Join(cmd.Process); err != nil {
		_ = cmd.Process.Kill()
		t.Fatalf("join: %v", err)
	}
	return cmd
}

// alive reports whether pid is running. Zombies awaiting reaping by their new
// parent count as dead.
func alive(pid int) bool {
	if data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat"); err == nil {
		if i := strings.LastIndexByte(string(data), ')'); i >= 0 && i+2 < len(data) {
			return data[i+2] != 'Z'
		}
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestPrepareStartsNewProcessGroup(t *testing.T) {
	c := newContainer(t)
	cmd := startJoined(t, c, "sleep 5")
	defer func() { _ = Kill(cmd.Process); _ = cmd.Wait() }()

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("getpgid: %v", err)
	}
	if pgid != cmd.Process.Pid {
		t.Fatalf("expected child to lead its own group, pgid=%d pid=%d", pgid, cmd.Process.Pid)
	}
	if got := c.Members(); len(got) != 1 || got[0] != cmd.Process.Pid {
		t.Fatalf("unexpected members: %v", got)
	}
}

func TestDestroyKillsDescendants(t *testing.T) {
	c := newContainer(t)
	pidFile := filepath.Join(t.TempDir(), "grandchild.pid")
	cmd := startJoined(t, c, "sleep 30 & echo $! > "+pidFile+"; wait")
	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	var grandchild int
	if !waitFor(t, 2*time.Second, func() bool {
		data, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		grandchild, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil && grandchild > 0
	}) {
		t.Fatal("grandchild pid was never written")
	}

	if err := c.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}

	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("child survived destroy")
	}
	if !waitFor(t, 2*time.Second, func() bool { return !alive(grandchild) }) {
		t.Fatalf("grandchild %d survived destroy", grandchild)
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	c := newContainer(t)
	if err := c.Destroy(); err != nil {
		t.Fatalf("first destroy: %v", err)
	}
	if err := c.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
}

func TestJoinAfterDestroyKillsProcess(t *testing.T) {
	c := newContainer(t)
	if err := c.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}

	cmd := exec.Command("/bin/sh", "-c", "sleep 30")
	c.Prepare(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Join(cmd.Process); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}

	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("process offered after destroy kept running")
	}
}

func TestInterruptDeliversSIGTERM(t *testing.T) {
	c := newContainer(t)
	marker := filepath.Join(t.TempDir(), "term")
	cmd := startJoined(t, c, "trap 'touch "+marker+"; exit 0' TERM; while :; do sleep 0.05; done")

	// Give the shell a moment to install its trap.
	time.Sleep(200 * time.Millisecond)
	if err := Interrupt(cmd.Process); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = Kill(cmd.Process)
		t.Fatal("process ignored SIGTERM")
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("trap did not run: %v", err)
	}
}

func TestLeaveDropsExitedGroup(t *testing.T) {
	c := newContainer(t)
	cmd := startJoined(t, c, "exit 0")
	_ = cmd.Wait()

	c.Leave(cmd.Process.Pid)
	if got := c.Members(); len(got) != 0 {
		t.Fatalf("expected no members after leave, got %v", got)
	}
}

func TestLeaveKeepsGroupWithLiveDescendant(t *testing.T) {
	c := newContainer(t)
	pidFile := filepath.Join(t.TempDir(), "grandchild.pid")
	cmd := startJoined(t, c, "sleep 30 & echo $! > "+pidFile)
	_ = cmd.Wait()

	var grandchild int
	if !waitFor(t, 2*time.Second, func() bool {
		data, err := os.ReadFile(pidFile)
		if err != nil {
			return false
		}
		grandchild, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil && grandchild > 0
	}) {
		t.Fatal("grandchild pid was never written")
	}

	leader := cmd.Process.Pid
	c.Leave(leader)
	if got := c.Members(); len(got) != 1 || got[0] != leader {
		t.Fatalf("expected group with a live descendant to stay tracked, got %v", got)
	}

	_ = syscall.Kill(grandchild, syscall.SIGKILL)
	if !waitFor(t, 2*time.Second, func() bool {
		c.Leave(leader)
		return len(c.Members()) == 0
	}) {
		if !alive(grandchild) {
			t.Skip("orphaned descendant is a zombie nobody reaps; its group id stays reserved")
		}
		t.Fatalf("emptied group still tracked: %v", c.Members())
	}
}

func TestJoinPrunesEmptiedGroups(t *testing.T) {
	c := newContainer(t)
	first := startJoined(t, c, "exit 0")
	_ = first.Wait()

	second := startJoined(t, c, "sleep 5")
	defer func() { _ = Kill(second.Process); _ = second.Wait() }()

	if got := c.Members(); len(got) != 1 || got[0] != second.Process.Pid {
		t.Fatalf("expected only the live group, got %v", got)
	}
}
