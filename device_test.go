package blockfs_test

import (
	"os"
	"path/filepath"
	"testing"

	blockfs "github.com/Mmoniot1/filesystem"
)

func writeGarbageFile(name string, size int) error {
	return os.WriteFile(name, make([]byte, size), 0644)
}

func newTestDevice(t *testing.T, blocksTotal int64) *blockfs.Device {
	t.Helper()
	name := filepath.Join(t.TempDir(), "device.img")
	dev, err := blockfs.CreateDevice(name, 512, blocksTotal)
	if err != nil {
		t.Fatalf("CreateDevice: %s", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestDeviceBlockRoundTrip(t *testing.T) {
	dev := newTestDevice(t, 16)

	pid, err := dev.AllocBlock()
	if err != nil {
		t.Fatalf("AllocBlock: %s", err)
	}
	if pid != 1 {
		t.Fatalf("first allocated block = %d, want 1", pid)
	}

	want := make([]byte, dev.BlockSize())
	for i := range want {
		want[i] = byte(i)
	}
	if err := dev.WriteBlock(pid, want); err != nil {
		t.Fatalf("WriteBlock: %s", err)
	}
	got := make([]byte, dev.BlockSize())
	if err := dev.ReadBlock(pid, got); err != nil {
		t.Fatalf("ReadBlock: %s", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDeviceFreelistReusesIDs(t *testing.T) {
	dev := newTestDevice(t, 16)

	a, err := dev.AllocBlock()
	if err != nil {
		t.Fatalf("AllocBlock: %s", err)
	}
	b, err := dev.AllocBlock()
	if err != nil {
		t.Fatalf("AllocBlock: %s", err)
	}
	if err := dev.FreeBlock(a); err != nil {
		t.Fatalf("FreeBlock: %s", err)
	}
	c, err := dev.AllocBlock()
	if err != nil {
		t.Fatalf("AllocBlock: %s", err)
	}
	if c != a {
		t.Fatalf("expected freed block %d to be reused, got %d", a, c)
	}
	if b == c {
		t.Fatalf("reused id %d collides with still-live block %d", c, b)
	}
}

func TestDeviceCapacityExhaustion(t *testing.T) {
	dev := newTestDevice(t, 64)

	var last blockfs.BlockPid
	for i := 0; i < 63; i++ {
		pid, err := dev.AllocBlock()
		if err != nil {
			t.Fatalf("AllocBlock #%d: %s", i, err)
		}
		last = pid
	}
	if last != 63 {
		t.Fatalf("63rd allocation = %d, want 63", last)
	}
	if _, err := dev.AllocBlock(); err == nil {
		t.Fatalf("expected AllocBlock to fail once capacity is exhausted")
	}
}

func TestDeviceSaveAndReopen(t *testing.T) {
	name := filepath.Join(t.TempDir(), "device.img")
	dev, err := blockfs.CreateDevice(name, 512, 16)
	if err != nil {
		t.Fatalf("CreateDevice: %s", err)
	}
	pid, err := dev.AllocBlock()
	if err != nil {
		t.Fatalf("AllocBlock: %s", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}

	reopened, err := blockfs.OpenDevice(name)
	if err != nil {
		t.Fatalf("OpenDevice: %s", err)
	}
	defer reopened.Close()

	next, err := reopened.AllocBlock()
	if err != nil {
		t.Fatalf("AllocBlock after reopen: %s", err)
	}
	if next == pid {
		t.Fatalf("reopened device handed out already-allocated block %d again", pid)
	}
	if next <= pid {
		t.Fatalf("bump pointer went backwards: got %d after %d", next, pid)
	}
}

func TestOpenDeviceRejectsBadSignature(t *testing.T) {
	name := filepath.Join(t.TempDir(), "garbage.img")
	if err := writeGarbageFile(name, 4096); err != nil {
		t.Fatalf("writing garbage file: %s", err)
	}
	if _, err := blockfs.OpenDevice(name); err == nil {
		t.Fatalf("expected OpenDevice to reject a file with no valid header")
	}
}
