// Package youtube implements the media fetcher against YouTube using
// github.com/kkdai/youtube/v2.
package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shadwo/mediadock/internal/media"
)

// Config holds fetcher configuration.
type Config struct {
	// OutputDir is where finished artifacts are written, named <id>.<ext>.
	OutputDir string
	// RequestsPerSec paces upstream calls; zero or negative disables pacing.
	RequestsPerSec float64
}

// Fetcher downloads one media stream per request, authenticating with
// the cookie file handed out by the credential rotator.
type Fetcher struct {
	limiter *rate.Limiter
	cfg     Config
	logger  *zap.Logger
}

// New creates a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Limit(cfg.RequestsPerSec)
	if cfg.RequestsPerSec <= 0 {
		limit = rate.Inf
	}
	return &Fetcher{
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		logger:  logger,
	}
}

// Fetch resolves the video, selects a stream matching the quality spec,
// and downloads it into the output directory.
func (f *Fetcher) Fetch(ctx context.Context, req media.FetchRequest) (media.FetchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return media.FetchResult{}, fmt.Errorf("rate limit wait: %w", err)
	}

	client, err := newClient(req.Credential)
	if err != nil {
		return media.FetchResult{}, err
	}

	video, err := client.GetVideoContext(ctx, watchURL(req.ID))
	if err != nil {
		return media.FetchResult{}, fmt.Errorf("resolve video %s: %w", req.ID, err)
	}

	format, err := selectFormat(video.Formats, req.Kind, req.Quality)
	if err != nil {
		return media.FetchResult{}, err
	}

	stream, _, err := client.GetStreamContext(ctx, video, format)
	if err != nil {
		return media.FetchResult{}, fmt.Errorf("open stream for %s: %w", req.ID, err)
	}
	defer stream.Close()

	filename := req.ID + extension(req.Kind, format.MimeType)
	written, err := f.writeArtifact(filename, stream)
	if err != nil {
		return media.FetchResult{}, err
	}

	f.logger.Debug("stream downloaded",
		zap.String("id", req.ID),
		zap.String("filename", filename),
		zap.Int64("size_bytes", written),
		zap.Int("itag", format.ItagNo),
	)
	return media.FetchResult{
		Filename:  filename,
		SizeBytes: written,
		Format:    strings.TrimPrefix(filepath.Ext(filename), "."),
	}, nil
}

// writeArtifact streams into a temp file and renames on success so a
// partial download never appears as a finished artifact.
func (f *Fetcher) writeArtifact(filename string, stream io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(f.cfg.OutputDir, "."+filename+".partial-*")
	if err != nil {
		return 0, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, stream)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("write artifact: %w", err)
	}

	finalPath := filepath.Join(f.cfg.OutputDir, filename)
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("finalize artifact: %w", err)
	}
	return written, nil
}

func newClient(credential media.CredentialArtifact) (*ytdl.Client, error) {
	if credential.Path == "" {
		return &ytdl.Client{}, nil
	}
	httpClient, err := cookieClient(credential.Path)
	if err != nil {
		return nil, fmt.Errorf("load credential %s: %w", credential.Name, err)
	}
	return &ytdl.Client{HTTPClient: httpClient}, nil
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func extension(kind media.Kind, mimeType string) string {
	switch {
	case kind == media.KindAudio && strings.Contains(mimeType, "mp4"):
		return ".m4a"
	case strings.Contains(mimeType, "mp4"):
		return ".mp4"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case kind == media.KindAudio:
		return ".audio"
	default:
		return ".video"
	}
}

// selectFormat picks the stream matching the requested quality preset.
func selectFormat(formats ytdl.FormatList, kind media.Kind, quality media.Quality) (*ytdl.Format, error) {
	if kind == media.KindAudio {
		return selectAudioFormat(formats, quality)
	}
	return selectVideoFormat(formats, quality)
}

func selectAudioFormat(formats ytdl.FormatList, quality media.Quality) (*ytdl.Format, error) {
	var audio []ytdl.Format
	for _, f := range formats {
		if strings.HasPrefix(f.MimeType, "audio/") {
			audio = append(audio, f)
		}
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio formats available")
	}
	sort.Slice(audio, func(i, j int) bool { return audio[i].Bitrate > audio[j].Bitrate })

	switch quality {
	case media.QualityAudioLow:
		return &audio[len(audio)-1], nil
	case media.QualityAudioMedium:
		return &audio[len(audio)/2], nil
	default:
		return &audio[0], nil
	}
}

func selectVideoFormat(formats ytdl.FormatList, quality media.Quality) (*ytdl.Format, error) {
	maxHeight := 0
	switch quality {
	case media.QualityVideo1080p:
		maxHeight = 1080
	case media.QualityVideo720p:
		maxHeight = 720
	case media.QualityVideo480p:
		maxHeight = 480
	}

	// Prefer progressive streams (video with an audio track) so the
	// artifact plays without muxing.
	var candidates []ytdl.Format
	for _, f := range formats {
		if !strings.HasPrefix(f.MimeType, "video/") || f.AudioChannels == 0 {
			continue
		}
		if maxHeight > 0 && f.Height > maxHeight {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		for _, f := range formats {
			if !strings.HasPrefix(f.MimeType, "video/") {
				continue
			}
			if maxHeight > 0 && f.Height > maxHeight {
				continue
			}
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no video formats available for quality %s", quality)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Height != candidates[j].Height {
			return candidates[i].Height > candidates[j].Height
		}
		return candidates[i].Bitrate > candidates[j].Bitrate
	})
	return &candidates[0], nil
}

var _ media.Fetcher = (*Fetcher)(nil)

// cookieClient builds an http.Client carrying the cookies found in a
// Netscape-format cookie file.
func cookieClient(path string) (*http.Client, error) {
	cookies, err := parseCookieFile(path)
	if err != nil {
		return nil, err
	}
	jar, err := newCookieJar(cookies)
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar}, nil
}
