package employees

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"b24portal/internal/bitrix"
	"b24portal/internal/logging"
)

// callPause spaces telephony registrations so the portal keeps up.
const callPause = 500 * time.Millisecond

// registerResult covers the response shapes telephony.externalCall.register
// is known to return.
type registerResult struct {
	CallID string     `json:"CALL_ID"`
	ID     bitrix.Int `json:"ID"`
}

func (r registerResult) callID() string {
	if r.CallID != "" {
		return r.CallID
	}
	if r.ID != 0 {
		return fmt.Sprintf("%d", int64(r.ID))
	}
	return ""
}

// GenerateTestCalls registers and finishes perUser synthetic calls for
// every listed user. Start times are spread over the past 23 hours and
// durations over 1..180 seconds; failures to register a single call
// are logged and skipped, not fatal.
func (s *Service) GenerateTestCalls(ctx context.Context, userIDs []int64, perUser int) error {
	if perUser <= 0 || len(userIDs) == 0 {
		return nil
	}

	log := logging.WithFields(ctx, "users", len(userIDs), "per_user", perUser)
	line := s.defaultLine(ctx)
	now := time.Now().UTC()

	for _, uid := range userIDs {
		for i := 0; i < perUser; i++ {
			start := now.Add(-time.Duration(rand.Intn(23*60)) * time.Minute)
			duration := 1 + rand.Intn(180)
			phone := fmt.Sprintf("+7999%07d", 1_000_000+rand.Intn(9_000_000))

			params := bitrix.Params{
				"USER_ID":         uid,
				"PHONE_NUMBER":    phone,
				"TYPE":            1,
				"SHOW":            0,
				"CALL_START_DATE": start.Format(callTimeLayout),
			}
			if line != "" {
				params["LINE_NUMBER"] = line
			}

			raw, err := s.api.CallMethod(ctx, "telephony.externalCall.register", params)
			if err != nil {
				log.Warn("register call failed", "user_id", uid, "error", err)
				continue
			}

			var reg registerResult
			if err := json.Unmarshal(raw, &reg); err != nil || reg.callID() == "" {
				log.Warn("register call returned no id", "user_id", uid)
				continue
			}

			_, err = s.api.CallMethod(ctx, "telephony.externalCall.finish", bitrix.Params{
				"CALL_ID":       reg.callID(),
				"USER_ID":       uid,
				"DURATION":      duration,
				"STATUS_CODE":   200,
				"FAILED_REASON": "",
				"RECORD_URL":    "",
			})
			if err != nil {
				log.Warn("finish call failed", "user_id", uid, "call_id", reg.callID(), "error", err)
			}

			if err := sleepCtx(ctx, callPause); err != nil {
				return err
			}
		}
	}

	log.Info("test calls generated")
	return nil
}

// defaultLine asks the portal for its default telephony line. Portals
// without telephony configured just omit it.
func (s *Service) defaultLine(ctx context.Context) string {
	raw, err := s.api.CallMethod(ctx, "telephony.config.get", bitrix.Params{})
	if err != nil {
		return ""
	}
	var cfg struct {
		DefaultLine string `json:"DEFAULT_LINE"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return ""
	}
	return cfg.DefaultLine
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
