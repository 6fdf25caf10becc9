package watcher

import (
	"testing"

	"github.com/BearBump/RegBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClassify_Open(t *testing.T) {
	signal, evidence := Classify(`<html><body><h1>Summer Camp</h1><a href="/go">Register Now</a></body></html>`)
	require.Equal(t, models.DetectionSignalOpen, signal)
	require.Contains(t, evidence, "register now")
}

func TestClassify_NegativeWinsOverPositive(t *testing.T) {
	signal, evidence := Classify("Register Now! ... Registration Closed for 2026.")
	require.Equal(t, models.DetectionSignalClosed, signal)
	require.Contains(t, evidence, "registration closed")
}

func TestClassify_NoSignals(t *testing.T) {
	signal, evidence := Classify("Welcome to our camp. See you in the summer!")
	require.Equal(t, models.DetectionSignalClosed, signal)
	require.Equal(t, "no signals matched", evidence)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	signal, _ := Classify("REGISTRATION IS NOW OPEN")
	require.Equal(t, models.DetectionSignalOpen, signal)
}

func TestClassify_SoldOut(t *testing.T) {
	signal, _ := Classify("Sign up now! (sold out)")
	require.Equal(t, models.DetectionSignalClosed, signal)
}
