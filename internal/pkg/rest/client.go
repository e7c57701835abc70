package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"Courtyard/internal/api/config"
	"Courtyard/internal/api/dto"
	"Courtyard/internal/pkg/consts"
)

// Client 平台后端 REST 出口，身份随请求头走
type Client struct {
	http *resty.Client
}

// New 构造 REST 客户端，统一注入身份头与超时
func New(cfg *config.Config) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Server.BaseURL).
		SetTimeout(time.Duration(cfg.Server.RequestTimeout) * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader(consts.HeaderUserID, cfg.Identity.UserID).
		SetHeader(consts.HeaderCampusID, cfg.Identity.CampusID)

	httpClient.JSONMarshal = json.Marshal
	httpClient.JSONUnmarshal = json.Unmarshal

	return &Client{http: httpClient}
}

// History 拉取与 peer 的最近历史消息，条目保持原始形态，归一化交给上层
func (s *Client) History(ctx context.Context, peerID string) ([]map[string]interface{}, error) {
	var out dto.HistoryResp
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(consts.DefaultHistoryLimit)).
		SetResult(&out).
		Get(fmt.Sprintf("%s/%s/messages", consts.ConversationsPath, url.PathEscape(peerID)))
	if err != nil {
		return nil, errors.Wrap(err, "history request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("history request: status %d", resp.StatusCode())
	}
	return out.Items, nil
}

// SendMessage 创建消息。服务端按 client_msg_id 幂等，重复提交视同成功
func (s *Client) SendMessage(ctx context.Context, req dto.SendMessageReq) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(consts.SendMessagePath)
	if err != nil {
		return errors.Wrap(err, "send message request")
	}
	if resp.IsError() && resp.StatusCode() != http.StatusConflict {
		return errors.Errorf("send message: status %d", resp.StatusCode())
	}
	return nil
}

// AckDelivery 上报投递水位，返回服务端确认值，0 表示未回传
func (s *Client) AckDelivery(ctx context.Context, peerID string, deliveredSeq int64) (int64, error) {
	var out dto.DeliveryResp
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(dto.DeliveryReq{DeliveredSeq: deliveredSeq}).
		SetResult(&out).
		Post(fmt.Sprintf("%s/%s/deliveries", consts.ConversationsPath, url.PathEscape(peerID)))
	if err != nil {
		return 0, errors.Wrap(err, "ack delivery request")
	}
	if resp.IsError() {
		return 0, errors.Errorf("ack delivery: status %d", resp.StatusCode())
	}
	return out.DeliveredSeq, nil
}

// Conversations 拉取会话列表
func (s *Client) Conversations(ctx context.Context) ([]dto.ConversationSummary, error) {
	var out dto.ConversationsResp
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(consts.ConversationsPath)
	if err != nil {
		return nil, errors.Wrap(err, "conversations request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("conversations: status %d", resp.StatusCode())
	}
	return out.Items, nil
}
