// Package pipeline runs the OCR→parse→upload sequence for one image at a
// time and decouples it from whatever front-end asked for it via a plain
// request/response channel pair.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agonajredini/Treadmill-to-Strava/models"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/history"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/ocr"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/strava"
)

// Uploader is the slice of the Strava client the pipeline needs.
type Uploader interface {
	UploadActivity(ctx context.Context, act models.ParsedActivity) (*strava.UploadResult, error)
}

// Pipeline holds the collaborators for processing one image.
type Pipeline struct {
	Engine   ocr.Engine
	Uploader Uploader
	Journal  *history.Journal // optional; nil disables duplicate detection
	Log      zerolog.Logger

	// Force uploads even when the journal has already seen the image bytes.
	Force bool
}

// Result is the outcome for one image.
type Result struct {
	ImagePath  string
	Fields     ocr.Fields
	Status     string // models.StatusUploaded / StatusSkipped / StatusFailed
	ActivityID int64
	StartDate  string
	Detail     string
	Err        error
}

// Process runs the full sequence for the image at path. Parse misses and
// already-uploaded duplicates are skips, not errors; OCR and upload failures
// set Err and a failed status. Nothing is retried here — the single
// refresh-on-401 inside the uploader is the only recovery in the flow.
func (p *Pipeline) Process(ctx context.Context, path, title, description string) Result {
	res := Result{ImagePath: path}

	text, err := p.Engine.ExtractText(ctx, path)
	if err != nil {
		res.Status = models.StatusFailed
		res.Err = fmt.Errorf("extract text: %w", err)
		res.Detail = res.Err.Error()
		p.record(res)
		return res
	}
	res.Fields = ocr.ParseFields(text)
	p.Log.Info().Str("image", path).Str("time", res.Fields.Time).Str("distance", res.Fields.Distance).Msg("parsed console fields")

	if !res.Fields.Complete() {
		res.Status = models.StatusSkipped
		res.Detail = fmt.Sprintf("upload skipped: %s, %s", res.Fields.Time, res.Fields.Distance)
		p.record(res)
		return res
	}

	sha := ""
	if p.Journal != nil {
		sha, err = history.HashFile(path)
		if err != nil {
			p.Log.Warn().Err(err).Msg("could not hash image, duplicate check skipped")
		} else if !p.Force {
			prev, err := p.Journal.FindUploadedByHash(sha)
			if err != nil {
				p.Log.Warn().Err(err).Msg("journal lookup failed, duplicate check skipped")
			} else if prev != nil {
				res.Status = models.StatusSkipped
				res.ActivityID = prev.ActivityID
				res.Detail = fmt.Sprintf("already uploaded as activity %d on %s (rerun with force to resend)", prev.ActivityID, prev.CreatedAt.Format("2006-01-02"))
				p.recordHashed(res, sha)
				return res
			}
		}
	}

	uploaded, err := p.Uploader.UploadActivity(ctx, models.ParsedActivity{
		Time:        res.Fields.Time,
		Distance:    res.Fields.Distance,
		ImagePath:   path,
		Title:       title,
		Description: description,
	})
	if err != nil {
		res.Status = models.StatusFailed
		res.Err = err
		res.Detail = err.Error()
		p.recordHashed(res, sha)
		return res
	}
	res.Status = models.StatusUploaded
	res.ActivityID = uploaded.ActivityID
	res.StartDate = uploaded.StartDateLocal
	p.recordHashed(res, sha)
	return res
}

func (p *Pipeline) record(res Result) { p.recordHashed(res, "") }

func (p *Pipeline) recordHashed(res Result, sha string) {
	if p.Journal == nil {
		return
	}
	rec := &models.UploadRecord{
		ImagePath:   res.ImagePath,
		ImageSHA256: sha,
		ElapsedTime: res.Fields.Time,
		Distance:    res.Fields.Distance,
		StartDate:   res.StartDate,
		ActivityID:  res.ActivityID,
		Status:      res.Status,
		Detail:      res.Detail,
	}
	if err := p.Journal.Record(rec); err != nil {
		p.Log.Warn().Err(err).Msg("could not journal result")
	}
}
