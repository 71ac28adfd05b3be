// Package ocr extracts text from tweet photos.
package ocr

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrEngine wraps failures of the recognition engine itself.
var ErrEngine = errors.New("ocr engine failed")

// Result is the text read from one image. Confidence is 0 to 100.
type Result struct {
	Text       string
	Confidence float64
}

// Engine recognizes text in an image file.
type Engine interface {
	Recognize(ctx context.Context, imagePath string) (Result, error)
}

// Tesseract runs the tesseract CLI and reads its TSV output.
type Tesseract struct {
	command  string
	language string
	timeout  time.Duration
}

// NewTesseract creates an engine running command with the given language.
func NewTesseract(command, language string, timeout time.Duration) *Tesseract {
	if command == "" {
		command = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{command: command, language: language, timeout: timeout}
}

func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (Result, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.command, imagePath, "stdout", "-l", t.language, "tsv")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("%w: %v: %s", ErrEngine, err, strings.TrimSpace(stderr.String()))
	}
	return ParseTSV(stdout.Bytes())
}

const (
	colLevel = 0
	colBlock = 2
	colPar   = 3
	colLine  = 4
	colConf  = 10
	colText  = 11

	levelWord = 5
)

// ParseTSV reads tesseract TSV output. Words are joined by spaces within a
// line and lines by newlines; the confidence is the mean over recognized
// words. Output without words yields an empty result with zero confidence.
func ParseTSV(data []byte) (Result, error) {
	var (
		lines   []string
		current []string
		lineKey string
		sum     float64
		words   int
	)
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	first := true
	for sc.Scan() {
		row := strings.Split(sc.Text(), "\t")
		if first {
			first = false
			if len(row) > 0 && row[0] == "level" {
				continue
			}
		}
		if len(row) < colText+1 {
			continue
		}
		if level, err := strconv.Atoi(row[colLevel]); err != nil || level != levelWord {
			continue
		}
		conf, err := strconv.ParseFloat(row[colConf], 64)
		if err != nil {
			return Result{}, fmt.Errorf("%w: bad confidence %q", ErrEngine, row[colConf])
		}
		text := strings.TrimSpace(row[colText])
		if conf < 0 || text == "" {
			continue
		}

		key := row[colBlock] + "/" + row[colPar] + "/" + row[colLine]
		if key != lineKey {
			flush()
			lineKey = key
		}
		current = append(current, text)
		sum += conf
		words++
	}
	if err := sc.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: read output: %v", ErrEngine, err)
	}
	flush()

	if words == 0 {
		return Result{}, nil
	}
	return Result{Text: strings.Join(lines, "\n"), Confidence: sum / float64(words)}, nil
}
