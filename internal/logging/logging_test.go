package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-oidc-provider/internal/logging"
)

func TestConfigure_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logging.Configure(&buf, "PROD", "warn")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Msg("dropped")
	log.Warn().Str("client_id", "abc").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "abc", entry["client_id"])
}

func TestConfigure_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logging.Configure(&buf, "DEV", "loud")

	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	log.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
}
