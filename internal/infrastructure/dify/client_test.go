package dify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fanqingsong/dify-chat-ui/internal/domain/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/v1/", "app-key", time.Second)
}

func readJSON(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(data, &out))
	return out
}

func TestClient_StreamChat(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer app-key", r.Header.Get("Authorization"))
		body = readJSON(t, r)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"event\":\"message\",\"task_id\":\"t1\",\"id\":\"m42\",\"conversation_id\":\"c9\",\"answer\":\"Hi\"}\n\n")
		_, _ = io.WriteString(w, "data: {\"event\":\"message_end\",\"task_id\":\"t1\",\"id\":\"m42\",\"conversation_id\":\"c9\"}\n\n")
	})

	stream, err := client.StreamChat(context.Background(), chat.ChatRequest{
		Query: "Hello",
		User:  "user_app1:s1",
		Files: []chat.VisionFile{
			{Type: "image", TransferMethod: chat.TransferLocalFile, URL: "blob:local", UploadFileID: "u1"},
			{Type: "image", URL: "https://x/a.png"},
		},
	})
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "Hi", ev.(chat.TextDelta).Text)

	ev, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "m42", ev.(chat.MessageEnd).MessageID)

	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, "streaming", body["response_mode"])
	assert.Equal(t, "", body["conversation_id"])
	assert.Equal(t, "user_app1:s1", body["user"])
	assert.Equal(t, map[string]any{}, body["inputs"])

	files := body["files"].([]any)
	require.Len(t, files, 2)
	local := files[0].(map[string]any)
	assert.Equal(t, "", local["url"], "本地文件不传 URL")
	assert.Equal(t, "u1", local["upload_file_id"])
	remote := files[1].(map[string]any)
	assert.Equal(t, chat.TransferRemoteURL, remote["transfer_method"])
}

func TestClient_StreamChatUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"invalid_param","message":"query is required","status":400}`)
	})

	_, err := client.StreamChat(context.Background(), chat.ChatRequest{User: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrUpstream)

	var upstream *chat.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, 400, upstream.Status)
	assert.Equal(t, "invalid_param", upstream.Code)
	assert.Equal(t, "query is required", upstream.Message)
}

func TestClient_PlainTextError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.FetchConversations(context.Background(), "u", 10)
	var upstream *chat.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
	assert.Equal(t, "bad gateway", upstream.Message)
}

func TestClient_FetchHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "c9", r.URL.Query().Get("conversation_id"))
		assert.Equal(t, "user_app1:s1", r.URL.Query().Get("user"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"limit":100,"has_more":false,"data":[{
			"id":"m1","conversation_id":"c9","query":"q","answer":"a","created_at":1700000000,
			"feedback":{"rating":"like"},
			"message_files":[{"id":"f1","type":"image","url":"https://x/1.png","belongs_to":"assistant"}],
			"agent_thoughts":[{"id":"th2","position":2,"thought":"second"},{"id":"th1","position":1,"thought":"first","files":["f1"]}]
		}]}`)
	})

	msgs, err := client.FetchHistory(context.Background(), "c9", "user_app1:s1", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), m.CreatedAt)
	require.NotNil(t, m.Feedback)
	assert.Equal(t, "like", m.Feedback.Rating)
	require.Len(t, m.Files, 1)
	assert.Equal(t, chat.BelongsToAssistant, m.Files[0].BelongsTo)
	require.Len(t, m.AgentThoughts, 2)
	assert.Equal(t, []string{"f1"}, m.AgentThoughts[1].FileIDs)

	tr := chat.BuildTranscript("c9", nil, msgs)
	require.Len(t, tr.Turns, 2)
	assert.Equal(t, "first", tr.Turns[1].AgentThoughts[0].Thought)
	require.Len(t, tr.Turns[1].AgentThoughts[0].Files, 1)
}

func TestClient_FetchHistoryNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"not_found","message":"Conversation Not Exists.","status":404}`)
	})

	_, err := client.FetchHistory(context.Background(), "missing", "u", 0)
	var upstream *chat.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.True(t, upstream.IsNotFound())
}

func TestClient_StopAndFeedback(t *testing.T) {
	bodies := map[string]map[string]any{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		bodies[r.URL.Path] = readJSON(t, r)
		_, _ = io.WriteString(w, `{"result":"success"}`)
	})

	ctx := context.Background()
	require.NoError(t, client.StopTask(ctx, "t1", "u"))
	require.NoError(t, client.SubmitFeedback(ctx, "m1", "like", "u"))
	require.NoError(t, client.SubmitFeedback(ctx, "m2", "", "u"))

	assert.Equal(t, "u", bodies["/v1/chat-messages/t1/stop"]["user"])
	assert.Equal(t, "like", bodies["/v1/messages/m1/feedbacks"]["rating"])
	rating, ok := bodies["/v1/messages/m2/feedbacks"]["rating"]
	assert.True(t, ok)
	assert.Nil(t, rating, "撤销评价传 null")
}

func TestClient_Conversations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/conversations":
			assert.Equal(t, "20", r.URL.Query().Get("limit"))
			_, _ = io.WriteString(w, `{"data":[{"id":"c1","name":"First","status":"normal","created_at":1700000000,"inputs":{"name":"Bob"}}],"has_more":false,"limit":20}`)
		case "/v1/conversations/c1/name":
			body := readJSON(t, r)
			assert.Equal(t, true, body["auto_generate"])
			_, _ = io.WriteString(w, `{"id":"c1","name":"Generated","created_at":1700000000}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()
	convs, err := client.FetchConversations(ctx, "u", 20)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "First", convs[0].Name)
	assert.Equal(t, "Bob", convs[0].Inputs["name"])

	renamed, err := client.RenameConversation(ctx, "c1", "", true, "u")
	require.NoError(t, err)
	assert.Equal(t, "Generated", renamed.Name)
}

func TestClient_FetchParameters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/parameters", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"opening_statement":"Hello {{name}}",
			"suggested_questions":["What can you do?"],
			"user_input_form":[
				{"text-input":{"label":"Name","variable":"name","required":true,"max_length":48}},
				{"select":{"label":"Lang","variable":"lang","required":false,"options":["en","zh"],"default":"en"}}
			],
			"file_upload":{"image":{"enabled":true}},
			"speech_to_text":{"enabled":false}
		}`)
	})

	params, err := client.FetchParameters(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{name}}", params.OpeningStatement)
	assert.True(t, params.FileUploadEnabled)
	require.Len(t, params.PromptVariables, 2)
	assert.Equal(t, "string", params.PromptVariables[0].Type)
	assert.Equal(t, 48, params.PromptVariables[0].MaxLength)
	assert.Equal(t, []string{"en", "zh"}, params.PromptVariables[1].Options)
	assert.Equal(t, []string{"name"}, params.RequiredKeys())
}
