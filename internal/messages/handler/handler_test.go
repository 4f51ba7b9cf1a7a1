package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"message-bridge/internal/apierrors"
	"message-bridge/internal/messages"
	"message-bridge/internal/messages/producer"
	"message-bridge/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestHandler(t *testing.T) (*Handler, *MockSender) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockSender := NewMockSender(ctrl)
	h := New(mockSender, observability.NewLogger())
	return &h, mockSender
}

func sendRequest(h *Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h.HandleSendMessage(c)
	return w
}

func TestHandler_HandleHealthCheck(t *testing.T) {
	h, _ := setupTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	h.HandleHealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestHandler_HandleSendMessage(t *testing.T) {
	t.Parallel()

	validBody := `{"action":"Create","message_id":42,"data":{"name":"a","message":"hi"}}`
	validEnvelope := messages.Envelope{
		Action:    messages.ActionCreate,
		MessageID: 42,
		Data:      &messages.Payload{Name: "a", Message: "hi"},
	}

	tests := []struct {
		name           string
		body           string
		setupMock      func(m *MockSender)
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "message sent",
			body: validBody,
			setupMock: func(m *MockSender) {
				m.EXPECT().Send(gomock.Any(), validEnvelope).Return(producer.Ack{Topic: "messages", Key: "1"}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "delete without data",
			body: `{"action":"Delete","message_id":42}`,
			setupMock: func(m *MockSender) {
				m.EXPECT().Send(gomock.Any(), messages.Envelope{Action: messages.ActionDelete, MessageID: 42}).Return(producer.Ack{}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "malformed json",
			body:           `{"action":`,
			setupMock:      func(m *MockSender) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apierrors.CodeMalformedEnvelope,
		},
		{
			name:           "empty body",
			body:           ``,
			setupMock:      func(m *MockSender) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apierrors.CodeMalformedEnvelope,
		},
		{
			name:           "update without data",
			body:           `{"action":"Update","message_id":1}`,
			setupMock:      func(m *MockSender) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   apierrors.CodeMalformedEnvelope,
		},
		{
			name: "encoding failure",
			body: validBody,
			setupMock: func(m *MockSender) {
				m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(producer.Ack{}, fmt.Errorf("%w: boom", messages.ErrEncodingFailure))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   apierrors.CodeEncodingFailed,
		},
		{
			name: "broker failure",
			body: validBody,
			setupMock: func(m *MockSender) {
				m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(producer.Ack{}, fmt.Errorf("%w: leader not available", producer.ErrPublish))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   apierrors.CodePublishFailed,
		},
		{
			name: "publish timeout",
			body: validBody,
			setupMock: func(m *MockSender) {
				m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(producer.Ack{}, fmt.Errorf("%w after 5s", producer.ErrPublishTimeout))
			},
			expectedStatus: http.StatusGatewayTimeout,
			expectedCode:   apierrors.CodePublishTimeout,
		},
		{
			name: "publish cancelled",
			body: validBody,
			setupMock: func(m *MockSender) {
				m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(producer.Ack{}, producer.ErrPublishCancelled)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   apierrors.CodePublishCancelled,
		},
		{
			name: "unexpected error",
			body: validBody,
			setupMock: func(m *MockSender) {
				m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(producer.Ack{}, errors.New("unexpected"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   apierrors.CodeInternalError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, mockSender := setupTestHandler(t)
			tt.setupMock(mockSender)

			w := sendRequest(h, tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "Message sent!", w.Body.String())
				return
			}

			var resp apierrors.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestHandler_HandleSendMessage_BodyTooLarge(t *testing.T) {
	h, _ := setupTestHandler(t)

	body := `{"action":"Create","message_id":1,"data":{"name":"a","message":"` + strings.Repeat("x", MaxBodyBytes) + `"}}`
	w := sendRequest(h, body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
