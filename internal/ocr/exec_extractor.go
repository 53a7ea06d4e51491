package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/ablelabs/able-core/internal/config"
	"github.com/ablelabs/able-core/internal/vision"
)

type execExtractor struct {
	cmd []string
	cfg config.OCRConfig
	mu  sync.Mutex
}

// NewExecExtractor shells out to a configured command, handing it the
// preprocessed frame as a temp PNG and reading a JSON extraction from stdout.
func NewExecExtractor(cfg config.OCRConfig) (Extractor, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse ocr command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ocr command is empty")
	}
	return &execExtractor{cmd: args, cfg: cfg}, nil
}

func (e *execExtractor) Extract(ctx context.Context, pre *vision.Preprocessed) (Extraction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "able_ocr_*.png")
	if err != nil {
		return Extraction{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if _, err := file.Write(pre.PNG); err != nil {
		return Extraction{}, fmt.Errorf("write png: %w", err)
	}

	args := append([]string{}, e.cmd...)
	base := args[0]
	cmdArgs := append(args[1:], "--image", file.Name())
	if e.cfg.Language != "" {
		cmdArgs = append(cmdArgs, "--language", e.cfg.Language)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Extraction{}, fmt.Errorf("ocr command failed: %w: %s", err, stderr.String())
	}

	var resp Extraction
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Extraction{}, fmt.Errorf("decode ocr response: %w", err)
	}
	return resp, nil
}
