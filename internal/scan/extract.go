package scan

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// emailPattern matches email-address-shaped tokens: a local part of
// letters/digits/._%+-, an @, dot-separated domain labels, and a top-level
// label of at least two letters. Best-effort; it is not a full RFC 5322
// grammar.
var emailPattern = regexp.MustCompile(`(?i)[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// fallbackChunkBytes is the read size for the in-process extractor.
const fallbackChunkBytes = 8 << 20 // 8 MiB

// Extractor yields raw email-shaped tokens from files. When a ripgrep binary
// is available it delegates matching to it (one match per line, binary files
// ignored); otherwise it streams the file in fixed-size chunks and applies
// the pattern in-process. Either way, per-file I/O failures yield nothing
// rather than an error — the scan moves on to the next file.
type Extractor struct {
	rgPath string
}

// NewExtractor creates an Extractor. rgPath overrides the ripgrep location;
// when empty, the binary is looked up on PATH. A zero-value Extractor uses
// the in-process fallback only.
func NewExtractor(rgPath string) *Extractor {
	if rgPath == "" {
		rgPath, _ = exec.LookPath("rg")
	}
	return &Extractor{rgPath: rgPath}
}

// ScanFile reads path once and calls emit for every raw match, in file order.
// Matches are reported as found, not canonicalized.
func (x *Extractor) ScanFile(ctx context.Context, path string, emit func(raw string)) {
	if x.rgPath != "" && x.scanWithRipgrep(ctx, path, emit) {
		return
	}
	x.scanChunked(path, emit)
}

// scanWithRipgrep shells out to rg and emits one match per output line.
// Returns false when rg could not be started, so the caller can fall back.
// -I ignores binary files, -N/-o print bare matches, --no-messages suppresses
// per-file I/O errors.
func (x *Extractor) scanWithRipgrep(ctx context.Context, path string, emit func(string)) bool {
	cmd := exec.CommandContext(ctx, x.rgPath,
		"-I", "-N", "-o", "--no-messages", "-e", emailPattern.String(), path)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return false
	}
	if err := cmd.Start(); err != nil {
		slog.Debug("extractor: ripgrep start failed, using fallback", "error", err)
		return false
	}

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			emit(line)
		}
	}
	// rg exits non-zero when nothing matched; that is not a failure.
	_ = cmd.Wait()
	return true
}

// scanChunked reads the file in fixed-size chunks and applies the pattern to
// each chunk. The pattern is ASCII, so running it over raw bytes drops
// undecodable bytes implicitly instead of aborting. Matches spanning a chunk
// boundary may be missed.
func (x *Extractor) scanChunked(path string, emit func(string)) {
	f, err := os.Open(path)
	if err != nil {
		slog.Debug("extractor: open failed, skipping file", "path", path, "error", err)
		return
	}
	defer f.Close()

	buf := make([]byte, fallbackChunkBytes)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			for _, m := range emailPattern.FindAll(buf[:n], -1) {
				emit(string(m))
			}
		}
		if err != nil {
			if err != io.EOF {
				slog.Debug("extractor: read failed mid-file", "path", path, "error", err)
			}
			return
		}
	}
}
