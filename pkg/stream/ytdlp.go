package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// YTDLPName is the provider name of the yt-dlp extraction adapter.
	YTDLPName = "ytdlp"
	// YTDLPDefaultTTL reflects googlevideo URLs expiring after several hours.
	YTDLPDefaultTTL = time.Hour
	// YouTubeVideoURLTemplate builds a watch URL from a video ID.
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// ytdlpRunner runs yt-dlp for one URL and returns its stdout and stderr.
type ytdlpRunner func(ctx context.Context, target string) (stdout, stderr string, err error)

// YTDLPConfig configures the yt-dlp adapter.
type YTDLPConfig struct {
	URLTemplate string // Defaults to YouTubeVideoURLTemplate.
	Cookies     string // Optional path to a cookies.txt file.
}

// YTDLPProvider extracts stream URLs natively by running yt-dlp in
// metadata-only mode.
type YTDLPProvider struct {
	template string
	run      ytdlpRunner
	logger   *zap.Logger
}

// NewYTDLPProvider creates a new yt-dlp adapter. The yt-dlp binary must be on
// PATH or installed with InstallYTDLP.
func NewYTDLPProvider(cfg YTDLPConfig, logger *zap.Logger) *YTDLPProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	template := cfg.URLTemplate
	if template == "" {
		template = YouTubeVideoURLTemplate
	}
	return &YTDLPProvider{
		template: template,
		run:      commandRunner(cfg.Cookies),
		logger:   logger.Named(YTDLPName),
	}
}

// InstallYTDLP downloads a yt-dlp binary into the user cache when none is
// available.
func InstallYTDLP(ctx context.Context) error {
	_, err := ytdlp.Install(ctx, nil)
	return err
}

func commandRunner(cookies string) ytdlpRunner {
	return func(ctx context.Context, target string) (string, string, error) {
		cmd := ytdlp.New().
			DumpJSON().
			SkipDownload().
			NoPlaylist().
			NoWarnings()
		if cookies != "" {
			cmd = cmd.Cookies(cookies)
		}

		res, err := cmd.Run(ctx, target)
		if res == nil {
			return "", "", err
		}
		return res.Stdout, res.Stderr, err
	}
}

// Name returns the provider name.
func (p *YTDLPProvider) Name() string {
	return YTDLPName
}

// Resolve dumps the video info and picks the best audio format.
func (p *YTDLPProvider) Resolve(ctx context.Context, ref TrackRef) (*StreamResult, error) {
	target := fmt.Sprintf(p.template, ref.ID)
	stdout, stderr, err := p.run(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewFailure(YTDLPName, ReasonUnavailable, ctx.Err())
		}
		return nil, classifyYTDLPError(stderr, err)
	}

	line := firstJSONLine(stdout)
	if line == "" || !gjson.Valid(line) {
		return nil, NewFailure(YTDLPName, ReasonUnavailable, ErrInvalidResponse)
	}
	info := gjson.Parse(line)

	best, err := NewSelector().Select(ytdlpCandidates(info))
	if err != nil {
		return nil, AsFailure(YTDLPName, err)
	}

	p.logger.Debug("Extracted stream",
		zap.String("track", ref.Key()),
		zap.String("quality", best.Quality),
		zap.Int("bitrate", best.Bitrate),
		zap.String("codec", best.Codec))

	return normalizeYTDLPInfo(best.URL, info), nil
}

// ytdlpCandidates prefers audio-only formats and falls back to any format
// that carries audio.
func ytdlpCandidates(info gjson.Result) []StreamCandidate {
	var audioOnly, withAudio []StreamCandidate
	for _, f := range info.Get("formats").Array() {
		acodec := f.Get("acodec").String()
		if acodec == "" || acodec == "none" {
			continue
		}
		c := StreamCandidate{
			URL:     f.Get("url").String(),
			Quality: firstString(f, "format_note", "format_id"),
			Bitrate: int(f.Get("abr").Float()),
			Codec:   acodec,
		}
		if !isStreamURL(c.URL) {
			continue
		}
		withAudio = append(withAudio, c)
		if v := f.Get("vcodec").String(); v == "none" {
			audioOnly = append(audioOnly, c)
		}
	}
	if len(audioOnly) > 0 {
		return audioOnly
	}
	if len(withAudio) > 0 {
		return withAudio
	}
	// Single-format extractors put the URL at the top level.
	if u := info.Get("url").String(); isStreamURL(u) {
		return []StreamCandidate{{URL: u, Bitrate: int(info.Get("abr").Float())}}
	}
	return nil
}

// normalizeYTDLPInfo maps a yt-dlp info document to a StreamResult.
func normalizeYTDLPInfo(streamURL string, info gjson.Result) *StreamResult {
	return newResult(
		streamURL,
		firstString(info, "track", "title", "fulltitle"),
		artistName(info, "artist", "creator", "uploader", "channel"),
		firstString(info, "thumbnail", "thumbnails|@reverse|0.url"),
		int(info.Get("duration").Float()),
	)
}

// classifyYTDLPError maps yt-dlp error output to a failure reason.
func classifyYTDLPError(stderr string, err error) *Failure {
	msg := strings.ToLower(stderr + " " + err.Error())
	var reason Reason
	switch {
	case strings.Contains(msg, "sign in"), strings.Contains(msg, "cookies"), strings.Contains(msg, "members-only"):
		reason = ReasonAuthRequired
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "private"),
		strings.Contains(msg, "not exist"), strings.Contains(msg, "incomplete youtube id"):
		reason = ReasonNotFound
	default:
		reason = ReasonUnavailable
	}

	if s := strings.TrimSpace(stderr); s != "" {
		err = errors.Join(err, errors.New(snippet([]byte(s))))
	}
	return NewFailure(YTDLPName, reason, err)
}

func firstJSONLine(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "{") {
			return line
		}
	}
	return ""
}
