package config

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPreflight(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults in development", func(*Settings) {}, false},
		{"missing salt", func(s *Settings) { s.Salt = " " }, true},
		{"missing secret", func(s *Settings) { s.SecretKey = "" }, true},
		{"production with default secret", func(s *Settings) { s.Environment = Production }, true},
		{"production with real secret", func(s *Settings) {
			s.Environment = Production
			s.SecretKey = "0f1e2d3c4b5a"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			err := Preflight(&s, zap.NewNop().Sugar())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrPreflight) {
				t.Fatalf("err %v is not ErrPreflight", err)
			}
		})
	}
}

func TestPreflightWarnsWithoutFirebaseInProduction(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := Defaults()
	s.Environment = Production
	s.SecretKey = "rotated"

	if err := Preflight(&s, zap.New(core).Sugar()); err != nil {
		t.Fatalf("Preflight: %v", err)
	}
	if logs.FilterMessage("firebase not configured in production").Len() != 1 {
		t.Fatalf("expected one firebase warning, got %v", logs.All())
	}
}
