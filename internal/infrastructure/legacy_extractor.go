package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/music-miko/t/internal/domain"
	"github.com/music-miko/t/pkg/logger"
)

// ErrNoCookies is returned when the cookies directory holds no *.txt file
var ErrNoCookies = errors.New("no cookie file available")

// YTDLPExtractor implements domain.LegacyExtractor on the yt-dlp binary
type YTDLPExtractor struct {
	config      *domain.LegacyConfig
	download    *domain.DownloadConfig
	logsDir     string
	eventLogger *logger.MultiLogger
}

// NewYTDLPExtractor creates a new yt-dlp extractor
func NewYTDLPExtractor(config *domain.LegacyConfig, download *domain.DownloadConfig, eventLogger *logger.MultiLogger) *YTDLPExtractor {
	return &YTDLPExtractor{
		config:      config,
		download:    download,
		logsDir:     download.LogsDir,
		eventLogger: eventLogger,
	}
}

// Extract runs yt-dlp for link and returns the file it produced. The link is
// always passed after "--" so it can never be parsed as an option.
func (e *YTDLPExtractor) Extract(ctx context.Context, link string, variant domain.Variant) (string, error) {
	if id, ok := domain.ResolveIdentifier(link); ok {
		if path, ok := e.download.FindExisting(variant, id); ok {
			return path, nil
		}
	}

	cookieFile, err := e.pickCookieFile()
	if err != nil {
		return "", err
	}

	outDir := e.download.DirFor(variant)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	args := e.buildArgs(cookieFile, outDir, variant, link)

	toolLog, err := e.openLogFile()
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}
	defer toolLog.Close()

	writeLogHeader(toolLog, link, FormatCommand(e.config.YTDLPBinary, args...))

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, e.config.YTDLPBinary, args...)
	cmd.Stdout = io.MultiWriter(&stdout, toolLog)
	cmd.Stderr = toolLog

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			writeLogFooter(toolLog, false, "cancelled")
			return "", ctx.Err()
		}
		writeLogFooter(toolLog, false, fmt.Sprintf("yt-dlp failed: %v", err))
		e.eventLogger.LogAppError("yt-dlp failed", zap.String("link", link), zap.Error(err))
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}

	path := lastLine(stdout.String())
	if path == "" || !nonEmptyFile(path) {
		writeLogFooter(toolLog, false, "no file produced")
		return "", domain.ErrEmptyResult
	}

	writeLogFooter(toolLog, true, "Downloaded: "+path)
	return path, nil
}

func (e *YTDLPExtractor) buildArgs(cookieFile, outDir string, variant domain.Variant, link string) []string {
	format := e.config.AudioFormat
	if variant.IsVideo() {
		format = e.config.VideoFormat
	}

	args := []string{
		"--cookies", cookieFile,
		"-f", format,
		"--geo-bypass",
		"--no-check-certificates",
		"--no-playlist",
		"--no-warnings",
		"-o", filepath.Join(outDir, "%(id)s.%(ext)s"),
		"--print", "after_move:filepath",
	}
	if e.config.MaxFilesize != "" {
		args = append(args, "--max-filesize", e.config.MaxFilesize)
	}
	if variant.IsVideo() {
		args = append(args, "--merge-output-format", "mp4")
	}
	return append(args, "--", link)
}

// pickCookieFile returns a random *.txt file from the cookies directory
func (e *YTDLPExtractor) pickCookieFile() (string, error) {
	matches, err := filepath.Glob(filepath.Join(e.config.CookiesDir, "*.txt"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoCookies, e.config.CookiesDir)
	}
	return matches[rand.Intn(len(matches))], nil
}

// openLogFile opens today's tool output log
func (e *YTDLPExtractor) openLogFile() (*os.File, error) {
	if err := os.MkdirAll(e.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	path := filepath.Join(e.logsDir, "legacy-"+time.Now().Format("20060102")+".log")
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func writeLogHeader(file *os.File, link, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(file, "\n=== [%s] Extract: %s ===\n", timestamp, link)
	fmt.Fprintf(file, "$ %s\n", cmdLine)
}

func writeLogFooter(file *os.File, success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(file, "[%s] %s: %s\n", timestamp, status, message)
	file.WriteString("=== END ===\n\n")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
