package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// GraphMailer はMicrosoft Graphの sendMail エンドポイントで通知メールを
// 送信する。送信には専用のサービスアカウント（送信元メールボックスを持つ
// ディレクトリ）の資格情報を使用し、監視対象テナントの資格情報とは独立している。
type GraphMailer struct {
	httpClient *http.Client
	tokens     *TokenProvider
	logger     *slog.Logger

	graphBaseURL string
	fromAddress  string
	directoryID  string
	clientID     string
	clientSecret string
}

// NewGraphMailer はGraphMailerの新しいインスタンスを生成する。
// graphBaseURLにはv1.0のベースURL（例: https://graph.microsoft.com/v1.0）を渡す。
func NewGraphMailer(
	httpClient *http.Client,
	tokens *TokenProvider,
	graphBaseURL string,
	fromAddress, directoryID, clientID, clientSecret string,
	logger *slog.Logger,
) *GraphMailer {
	return &GraphMailer{
		httpClient:   httpClient,
		tokens:       tokens,
		logger:       logger,
		graphBaseURL: graphBaseURL,
		fromAddress:  fromAddress,
		directoryID:  directoryID,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// sendMailRequest はsendMailエンドポイントのリクエストボディ。
type sendMailRequest struct {
	Message struct {
		Subject string `json:"subject"`
		Body    struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		ToRecipients []recipient `json:"toRecipients"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

type recipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// Send はHTML本文のメールを1宛先に送信する。
func (m *GraphMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	token, err := m.tokens.Token(ctx, m.directoryID, m.clientID, m.clientSecret, graphScope)
	if err != nil {
		return fmt.Errorf("メール送信用トークンの取得に失敗しました: %w", err)
	}

	var payload sendMailRequest
	payload.Message.Subject = subject
	payload.Message.Body.ContentType = "HTML"
	payload.Message.Body.Content = htmlBody
	var r recipient
	r.EmailAddress.Address = to
	payload.Message.ToRecipients = []recipient{r}
	payload.SaveToSentItems = false

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("メールペイロードのエンコードに失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", m.graphBaseURL, m.fromAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("メール送信リクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	// sendMailの成功応答は202 Accepted
	if resp.StatusCode != http.StatusAccepted {
		m.logger.Error("sendMailがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("to", to),
		)
		return fmt.Errorf("sendMailがステータス %d を返しました", resp.StatusCode)
	}

	return nil
}
