package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaronwang/agreeconnect/shared/logging"
)

func TestNewDefaultLogger(t *testing.T) {
	testCases := map[string]struct {
		format    string
		level     string
		expectErr bool
	}{
		"invalid format": {
			format:    "foo",
			level:     logging.LogLevelInfo,
			expectErr: true,
		},
		"invalid level": {
			format:    logging.LogFormatJSON,
			level:     "foo",
			expectErr: true,
		},
		"valid format and level": {
			format:    logging.LogFormatJSON,
			level:     logging.LogLevelInfo,
			expectErr: false,
		},
		"plain format": {
			format:    logging.LogFormatPlain,
			level:     logging.LogLevelDebug,
			expectErr: false,
		},
	}

	for name, tc := range testCases {
		tc := tc

		t.Run(name, func(t *testing.T) {
			_, err := logging.NewDefaultLogger(tc.format, tc.level)
			if tc.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(&buf, logging.LogFormatJSON, logging.LogLevelInfo)
	require.NoError(t, err)

	logger.With("module", "bidding").Info("bid_accepted", "listing_id", "l-1", "err", errors.New("boom"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "bid_accepted", line["message"])
	require.Equal(t, "info", line["level"])
	require.Equal(t, "bidding", line["module"])
	require.Equal(t, "l-1", line["listing_id"])
	require.Equal(t, "boom", line["err"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(&buf, logging.LogFormatJSON, logging.LogLevelError)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hidden")
	require.Zero(t, buf.Len())

	logger.Error("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestNopLogger(t *testing.T) {
	logger := logging.NewNopLogger()
	logger.With("a", 1).Error("nothing happens")
}
