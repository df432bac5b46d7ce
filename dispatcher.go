package capwatch

import (
	"context"
	"time"

	"github.com/hazyhaar/capwatch/caption"
	"github.com/hazyhaar/capwatch/idgen"
	"github.com/hazyhaar/capwatch/internal/pipeline"
	"github.com/hazyhaar/capwatch/internal/translate"
)

// dispatcher returns the pipeline callback for one session: translate the
// utterance, fall back to a degraded result when the backend fails, then
// deliver the result and any audio to the sinks. Nothing is retried.
func (s *Service) dispatcher(sessionID, meetingID, target, voice string) pipeline.Dispatcher {
	log := s.logger.With("session", sessionID, "meeting", meetingID)
	timeout := s.cfg.Translate.Timeout

	return func(ctx context.Context, text string) {
		tctx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			tctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := s.translator.Translate(tctx, translate.Request{
			Text:           text,
			SourceLanguage: s.cfg.Translate.SourceLanguage,
			TargetLanguage: target,
			VoiceID:        voice,
		})
		s.metrics.RecordTranslate(ctx, time.Since(start).Seconds(), err != nil)

		degraded := false
		if err != nil {
			log.Warn("capwatch: translation failed, sending fallback", "chars", len(text), "error", err)
			resp = translate.Fallback(text)
			degraded = true
		}

		now := time.Now().UnixMilli()
		res := caption.Result{
			ID:             idgen.Result(),
			SessionID:      sessionID,
			PageID:         meetingID,
			OriginalText:   text,
			TranslatedText: resp.TranslatedText,
			Confidence:     resp.Confidence,
			TargetLanguage: target,
			Degraded:       degraded,
			Timestamp:      now,
		}
		if err := s.sinkR.SendResult(ctx, res); err != nil {
			s.metrics.RecordSinkError(ctx, "result")
		}

		if len(resp.AudioData) == 0 {
			return
		}
		audio := caption.Audio{
			ResultID:  res.ID,
			SessionID: sessionID,
			PageID:    meetingID,
			Data:      resp.AudioData,
			Timestamp: now,
		}
		if err := s.sinkR.SendAudio(ctx, audio); err != nil {
			s.metrics.RecordSinkError(ctx, "audio")
		}
	}
}
