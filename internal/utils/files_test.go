package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/tidyloom-cli/internal/utils"
)

func TestSafeWriteFileCreatesDirAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "data.csv")
	if err := utils.SafeWriteFile(path, []byte("a\n")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := utils.SafeWriteFile(path, []byte("b\n")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "b\n" {
		t.Fatalf("content = %q", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestPrettyJSON(t *testing.T) {
	b, err := utils.PrettyJSON(map[string]int{"rows": 3})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "{\n  \"rows\": 3\n}" {
		t.Fatalf("PrettyJSON = %q", b)
	}
	if _, err := utils.PrettyJSON(make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}
