//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/formcoach/internal/coach"
	"github.com/2beens/formcoach/internal/feedback"
	"github.com/2beens/formcoach/internal/formcheck"
	"github.com/2beens/formcoach/internal/middleware"
	"github.com/2beens/formcoach/internal/testinternals"
	"github.com/2beens/formcoach/internal/workouts"
)

func (s *IntegrationTestSuite) do(ctx context.Context, method, path string, body []byte, authorized bool) (int, []byte) {
	t := s.T()

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set(middleware.TokenHeader, testClientSecret)
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBytes
}

func (s *IntegrationTestSuite) newSession(ctx context.Context, kilos int) coach.SessionInfo {
	t := s.T()
	status, body := s.do(ctx, "POST", "/coach/sessions",
		[]byte(fmt.Sprintf(`{"exerciseId":"bicep_curl","kilos":%d}`, kilos)), true)
	require.Equal(t, http.StatusCreated, status, string(body))

	var info coach.SessionInfo
	require.NoError(t, json.Unmarshal(body, &info))
	return info
}

func (s *IntegrationTestSuite) TestUnauthorized() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status, _ := s.do(ctx, "POST", "/coach/sessions", []byte(`{"exerciseId":"bicep_curl"}`), false)
	assert.Equal(s.T(), http.StatusUnauthorized, status)

	status, _ = s.do(ctx, "GET", "/coach/exercises", nil, false)
	assert.Equal(s.T(), http.StatusOK, status)
}

func (s *IntegrationTestSuite) TestCoachedSet() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	t := s.T()

	info := s.newSession(ctx, 16)

	sub := s.redisClient.Subscribe(ctx, info.FeedbackChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	poses := testinternals.ElbowPoses(testinternals.CleanReps(2))
	poses = append(poses, testinternals.CurlPose{Elbow: 110, Wrist: 100})
	for _, f := range testinternals.CurlFrames(poses...) {
		body, err := json.Marshal(f)
		require.NoError(t, err)
		status, respBody := s.do(ctx, "POST", "/coach/sessions/"+info.ID+"/frames", body, true)
		require.Equal(t, http.StatusOK, status, string(respBody))
	}

	// the bent wrist is announced on the session channel
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var payload feedback.Payload
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	assert.Equal(t, info.ID, payload.SessionID)
	assert.Equal(t, formcheck.WristMisalignment, payload.Code)
	assert.NotEmpty(t, payload.Speech)

	status, body := s.do(ctx, "POST", "/coach/sessions/"+info.ID+"/finish", nil, true)
	require.Equal(t, http.StatusOK, status, string(body))
	var finished coach.FinishResponse
	require.NoError(t, json.Unmarshal(body, &finished))
	require.NotNil(t, finished.Set)
	assert.Equal(t, 2, finished.Set.Reps)
	assert.Equal(t, 16, finished.Set.Kilos)
	assert.Equal(t, 1, finished.Summary.ErrorAppearances[formcheck.WristMisalignment])

	status, body = s.do(ctx, "GET", "/coach/workouts/page/1/size/10?exercise_id=bicep_curl", nil, true)
	require.Equal(t, http.StatusOK, status, string(body))
	var list coach.ListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.NotEmpty(t, list.Sets)
	found := false
	for _, set := range list.Sets {
		if set.Metadata[workouts.MetaSessionID] == info.ID {
			found = true
			assert.Equal(t, finished.Set.ID, set.ID)
			assert.Equal(t, 1, set.ErrorCounts()[formcheck.WristMisalignment])
		}
	}
	assert.True(t, found, "finished set listed")

	status, _ = s.do(ctx, "GET", "/coach/sessions/"+info.ID+"/summary", nil, true)
	assert.Equal(t, http.StatusOK, status)
}

func (s *IntegrationTestSuite) TestFramesRateLimited() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	t := s.T()

	info := s.newSession(ctx, 0)
	body, err := json.Marshal(testinternals.CurlFrame(0, testinternals.CurlPose{Elbow: 160}))
	require.NoError(t, err)

	limited := 0
	for i := 0; i < testFramesRateLimit+10; i++ {
		status, _ := s.do(ctx, "POST", "/coach/sessions/"+info.ID+"/frames", body, true)
		if status == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Positive(t, limited)

	// other sessions have their own budget
	other := s.newSession(ctx, 0)
	status, _ := s.do(ctx, "POST", "/coach/sessions/"+other.ID+"/frames", body, true)
	assert.Equal(t, http.StatusOK, status)
}
