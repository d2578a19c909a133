package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/safa0/google-rangerz/internal/client"
	"github.com/safa0/google-rangerz/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTextServiceClient_ContinueStory(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/continue_story", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"success","raw_text":"<img>x</img>"}`))
	}))
	defer srv.Close()

	c := client.NewTextServiceClient(srv.URL+"/", 5*time.Second, zap.NewNop())
	req := domain.GenerationRequest{
		Name: "Alex", Age: 10, SkillLevel: domain.SkillBeginner,
		Interests: []string{"space"}, BigPicture: "A trip to the moon",
		Summary: "Alex built a rocket.", LatestChoice: "Explore",
		ExerciseType: domain.ExerciseFillInBlank, Progression: 2, TotalSteps: 3, Model: domain.DefaultModel,
	}
	raw, err := c.ContinueStory(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "<img>x</img>", raw)

	assert.Equal(t, "Alex", got["name"])
	assert.Equal(t, "A trip to the moon", got["big_picture"])
	assert.Equal(t, "Alex built a rocket.", got["summary_of_previous_story"])
	assert.Equal(t, "Explore", got["latest_choice"])
	assert.Equal(t, "fill_in_blank", got["exercise_type"])
	assert.Equal(t, float64(2), got["progression"])
	assert.Equal(t, float64(3), got["total_steps"])
}

func TestTextServiceClient_InitializeStory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/initialize_story", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"success","title":" Fiskelyckan ","story_info":"Alex goes fishing."}`))
	}))
	defer srv.Close()

	c := client.NewTextServiceClient(srv.URL, 5*time.Second, zap.NewNop())
	init, err := c.InitializeStory(context.Background(), domain.StoryInitRequest{Name: "Alex", Age: 10})
	require.NoError(t, err)
	assert.Equal(t, "Fiskelyckan", init.Title)
	assert.Equal(t, "Alex goes fishing.", init.Premise)
}

func TestTextServiceClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{"non-200", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, domain.ErrTextService},
		{"error envelope", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"error","message":"quota exceeded"}`))
		}, client.ErrUnsuccessfulStatus},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>oops</html>`))
		}, client.ErrBadEnvelope},
		{"success without text", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"success"}`))
		}, client.ErrBadEnvelope},
		{"blank text", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"success","raw_text":"  ","story":""}`))
		}, client.ErrBadEnvelope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := client.NewTextServiceClient(srv.URL, 5*time.Second, zap.NewNop())
			_, err := c.ContinueStory(context.Background(), domain.GenerationRequest{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, domain.ErrTextService)
			assert.True(t, domain.IsRetryable(err))
		})
	}
}

func TestTextServiceClient_StoryFieldFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","story":"<txt>x</txt>"}`))
	}))
	defer srv.Close()

	c := client.NewTextServiceClient(srv.URL, 5*time.Second, zap.NewNop())
	raw, err := c.ContinueStory(context.Background(), domain.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "<txt>x</txt>", raw)
}

func TestTextServiceClient_InitializeWithoutTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","story_info":"no title"}`))
	}))
	defer srv.Close()

	c := client.NewTextServiceClient(srv.URL, 5*time.Second, zap.NewNop())
	_, err := c.InitializeStory(context.Background(), domain.StoryInitRequest{Name: "Alex"})
	assert.ErrorIs(t, err, client.ErrBadEnvelope)
	assert.ErrorIs(t, err, domain.ErrTextService)
	assert.True(t, domain.IsRetryable(err))
}

func TestTextServiceClient_TimeoutIsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := client.NewTextServiceClient(srv.URL, 50*time.Millisecond, zap.NewNop())
	_, err := c.ContinueStory(context.Background(), domain.GenerationRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTextService)
}

func TestImageServiceClient_GenerateImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate_image", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a red fox", body["description"])
		_, _ = w.Write([]byte(`{"status":"success","image_base64":"aGVsbG8="}`))
	}))
	defer srv.Close()

	c := client.NewImageServiceClient(srv.URL, 5*time.Second, zap.NewNop())
	payload, err := c.GenerateImage(context.Background(), "a red fox")
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", payload)
}

func TestImageServiceClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"nsfw filter"}`))
	}))
	defer srv.Close()

	c := client.NewImageServiceClient(srv.URL, 5*time.Second, zap.NewNop())
	_, err := c.GenerateImage(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrImageService)
	assert.NotErrorIs(t, err, domain.ErrImageDecode)
}

func TestImageServiceClient_EmptyPayloadIsRetryable(t *testing.T) {
	for name, body := range map[string]string{
		"missing field": `{"status":"success"}`,
		"blank field":   `{"status":"success","image_base64":" "}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			c := client.NewImageServiceClient(srv.URL, 5*time.Second, zap.NewNop())
			payload, err := c.GenerateImage(context.Background(), "x")
			require.Error(t, err)
			assert.Empty(t, payload)
			assert.ErrorIs(t, err, client.ErrBadEnvelope)
			assert.ErrorIs(t, err, domain.ErrImageService)
			assert.NotErrorIs(t, err, domain.ErrImageDecode)
			assert.True(t, domain.IsRetryable(err))
		})
	}
}
