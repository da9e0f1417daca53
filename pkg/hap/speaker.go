package hap

import (
	"context"
	"fmt"

	"github.com/cliairplay/hap/pkg/accessory"
)

// Speaker characteristic helpers. Each locates the characteristic by
// its well-known type first and only then falls back to the loose
// heuristic, so a well-formed database never hits the heuristic path.

// findSpeakerCharacteristic resolves a speaker characteristic by exact
// type, falling back to the heuristic predicate. Callers hold the
// session mutex.
func (s *Session) findSpeakerCharacteristic(ctx context.Context, typeID string, fallback accessory.Predicate) (*accessory.Characteristic, uint64, error) {
	db, err := s.database(ctx)
	if err != nil {
		return nil, 0, err
	}
	if c, aid, err := accessory.FindFirst(db, accessory.ByType(typeID)); err == nil {
		return c, aid, nil
	}
	return accessory.FindFirst(db, fallback)
}

// Volume reads the speaker volume (0..100).
func (s *Session) Volume(ctx context.Context) (int, error) {
	s.mu.Lock()
	c, aid, err := s.findSpeakerCharacteristic(ctx, accessory.TypeVolume, accessory.VolumeHeuristic)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	value, err := s.GetCharacteristic(ctx, aid, c.IID)
	if err != nil {
		return 0, err
	}
	return accessory.Int(value)
}

// SetVolume sets the speaker volume. Values outside 0..100 are
// rejected before anything reaches the accessory.
func (s *Session) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return fmt.Errorf("hap: volume %d out of range 0..100", volume)
	}

	s.mu.Lock()
	c, aid, err := s.findSpeakerCharacteristic(ctx, accessory.TypeVolume, accessory.VolumeHeuristic)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.SetCharacteristic(ctx, aid, c.IID, volume)
}

// Mute reads the speaker mute state.
func (s *Session) Mute(ctx context.Context) (bool, error) {
	s.mu.Lock()
	c, aid, err := s.findSpeakerCharacteristic(ctx, accessory.TypeMute, accessory.MuteHeuristic)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	value, err := s.GetCharacteristic(ctx, aid, c.IID)
	if err != nil {
		return false, err
	}
	return accessory.Bool(value)
}

// SetMute sets the speaker mute state.
func (s *Session) SetMute(ctx context.Context, mute bool) error {
	s.mu.Lock()
	c, aid, err := s.findSpeakerCharacteristic(ctx, accessory.TypeMute, accessory.MuteHeuristic)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.SetCharacteristic(ctx, aid, c.IID, mute)
}
