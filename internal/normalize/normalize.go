// Package normalize shortens message text and reduces media links to short
// identifiers in an extracted dataset.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"runtime"
	"sort"

	"tiksql/internal/dataset"
)

// Logger is the logging surface used by Normalizer.
type Logger interface {
	Printf(format string, v ...any)
}

var discardLogger = log.New(io.Discard, "", 0)

// Kind selects how a column is rewritten.
type Kind int

const (
	Message Kind = iota
	Link
	SoundLink
	EffectLink
)

// Processor describes the rewritable column of one table.
type Processor struct {
	Column string
	Kind   Kind
	// TikTok allows video id extraction.
	TikTok bool
	// Media allows media file name extraction.
	Media bool
	// Shorten allows length limiting.
	Shorten bool
}

// Processors maps table name to its rewritable column.
var Processors = map[string]Processor{
	"group_chats":      {Column: "message_content", Kind: Message, TikTok: true, Media: true, Shorten: true},
	"direct_messages":  {Column: "message_content", Kind: Message, TikTok: true, Media: true, Shorten: true},
	"comments":         {Column: "comment_text", Kind: Message, Media: true, Shorten: true},
	"reposts":          {Column: "video_link", Kind: Link, TikTok: true},
	"share_history":    {Column: "shared_link", Kind: Link, TikTok: true},
	"posts":            {Column: "video_link", Kind: Link, TikTok: true},
	"liked_videos":     {Column: "video_link", Kind: Link, TikTok: true},
	"deleted_posts":    {Column: "video_link", Kind: Link, TikTok: true},
	"favorite_videos":  {Column: "video_link", Kind: Link, TikTok: true},
	"favorite_sounds":  {Column: "sound_link", Kind: SoundLink, Media: true},
	"favorite_effects": {Column: "effect_link", Kind: EffectLink, Media: true},
}

// Options controls the rewrite.
type Options struct {
	// MaxLength limits message text; 0 means 100.
	MaxLength            int
	ExtractVideoID       bool
	ExtractMediaFilename bool
	PreserveURLs         bool
	SmartTruncate        bool
	// Ellipsis is appended to cut text; "" means "...".
	Ellipsis string
	// StripMarkup replaces HTML in messages with its text content.
	StripMarkup bool
	// Tables restricts the rewrite; empty means every table in Processors.
	Tables []string
}

// Preset returns named options: default, quick, max or preserve.
func Preset(name string) (Options, error) {
	o := Options{ExtractVideoID: true, ExtractMediaFilename: true, StripMarkup: true, Ellipsis: "..."}
	switch name {
	case "", "default":
		o.MaxLength, o.PreserveURLs = 100, true
	case "quick":
		o.MaxLength, o.SmartTruncate = 100, true
	case "max":
		o.MaxLength, o.SmartTruncate = 50, true
	case "preserve":
		o.MaxLength, o.PreserveURLs = 200, true
	default:
		return Options{}, fmt.Errorf("unknown normalize preset %q (want default|quick|max|preserve)", name)
	}
	return o, nil
}

// Rewrite applies p to one value under o.
func Rewrite(v string, p Processor, o Options) string {
	switch p.Kind {
	case Link:
		if p.TikTok && o.ExtractVideoID {
			return VideoHash(v)
		}
		return v
	case SoundLink:
		if p.Media && o.ExtractMediaFilename {
			return soundName(v)
		}
		return v
	case EffectLink:
		if p.Media && o.ExtractMediaFilename {
			return effectName(v)
		}
		return v
	}

	if o.StripMarkup {
		v = StripMarkup(v)
	}
	if anyURL.MatchString(v) {
		if p.TikTok && o.ExtractVideoID {
			v = replaceVideoURLs(v)
		}
		if p.Media && o.ExtractMediaFilename {
			v = replaceMediaURLs(v)
		}
	}
	if !p.Shorten {
		return v
	}
	limit := o.MaxLength
	if limit <= 0 {
		limit = 100
	}
	ellipsis := o.Ellipsis
	if ellipsis == "" {
		ellipsis = "..."
	}
	if o.SmartTruncate {
		return SmartTruncate(v, limit, ellipsis)
	}
	return Shorten(v, limit, o.PreserveURLs, ellipsis)
}

// Normalizer rewrites a dataset in place.
type Normalizer struct {
	// ChunkSize is how many rows are processed between cancellation checks.
	ChunkSize int
	Logger    Logger
	// OnProgress, if set, is called after every chunk.
	OnProgress func(processed, total int)
}

// Apply rewrites the processable column of every selected table and returns
// how many values changed.
//
// Edge cases:
//   - Rows without the column, and nil values, are left alone.
//   - Non-string values are rewritten from their JSON text.
//   - A dataset with nothing to process returns (0, nil).
//
// Errors:
//   - the context error when ctx is cancelled between chunks.
func (n Normalizer) Apply(ctx context.Context, ds *dataset.Dataset, o Options) (int, error) {
	logger := n.Logger
	if logger == nil {
		logger = discardLogger
	}
	chunk := n.ChunkSize
	if chunk <= 0 {
		chunk = 1000
	}

	tables := o.Tables
	if len(tables) == 0 {
		for t := range Processors {
			tables = append(tables, t)
		}
		sort.Strings(tables)
	}

	total := 0
	for _, t := range tables {
		if _, ok := Processors[t]; ok {
			total += len(ds.Tables[t])
		}
	}
	if total == 0 {
		logger.Printf("stage=normalize skip reason=no_rows")
		return 0, nil
	}

	processed, changed := 0, 0
	for _, t := range tables {
		p, ok := Processors[t]
		if !ok {
			logger.Printf("stage=normalize skip table=%s reason=no_processor", t)
			continue
		}
		tableChanged := 0
		for _, row := range ds.Tables[t] {
			if v, ok := row.Get(p.Column); ok && v != nil {
				s, isString := v.(string)
				if !isString {
					b, err := json.Marshal(v)
					if err != nil {
						continue
					}
					s = string(b)
				}
				if out := Rewrite(s, p, o); !isString || out != s {
					row.Set(p.Column, out)
					tableChanged++
				}
			}
			processed++
			if processed%chunk == 0 {
				if err := ctx.Err(); err != nil {
					return changed + tableChanged, err
				}
				if n.OnProgress != nil {
					n.OnProgress(processed, total)
				}
				runtime.Gosched()
			}
		}
		changed += tableChanged
		if len(ds.Tables[t]) > 0 {
			logger.Printf("stage=normalize table=%s rows=%d changed=%d", t, len(ds.Tables[t]), tableChanged)
		}
	}
	if n.OnProgress != nil {
		n.OnProgress(processed, total)
	}
	return changed, nil
}
