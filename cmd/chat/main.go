package main

import (
	"Courtyard/internal/api/config"
	"Courtyard/internal/chat"
	"Courtyard/internal/model"
	"Courtyard/internal/pkg/logger"
	"Courtyard/internal/pkg/socket"
	"Courtyard/internal/wire"
	"bufio"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load(".env")

	// 加载配置
	if err := config.LoadConfig(); err != nil {
		log.Error("Fatal error: failed to load configuration", "err", err)
		panic(err)
	}
	cfg := config.Cfg

	// 初始化日志
	logger.InitLogger()

	if cfg.Identity.UserID == "" {
		log.Error("Fatal error: identity.user_id is required")
		panic(chat.ErrIdentityMissing)
	}

	// 依赖注入
	app, err := wire.BuildClient(cfg)
	if err != nil {
		log.Error("Fatal error: failed to create client", "err", err)
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	unsubState := app.Client.SubscribeConnState(func(state socket.State) {
		fmt.Printf("-- 连接状态: %s\n", state)
	})
	defer unsubState()

	fmt.Printf("已登录 %s，/open <peerId> 打开会话，/quit 退出\n", cfg.Identity.UserID)

	// 命令行交互
	g.Go(func() error {
		var sess *chat.Session
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			switch {
			case line == "/quit":
				cancel()
				return nil
			case strings.HasPrefix(line, "/open "):
				peerID := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
				if peerID == "" {
					fmt.Println("用法: /open <peerId>")
					continue
				}
				sess = app.Client.OpenConversation(peerID)
				attach(sess)
				fmt.Printf("-- 会话 %s 已打开\n", sess.ConversationID())
			case line == "/list":
				listConversations(app.Client)
			case line == "/history":
				if sess == nil {
					fmt.Println("先 /open 一个会话")
					continue
				}
				render(sess)
			case line == "/typing":
				if sess != nil {
					sess.EmitTyping()
				}
			default:
				if sess == nil {
					fmt.Println("先 /open 一个会话")
					continue
				}
				sess.Send(line)
			}

			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
		cancel()
		return scanner.Err()
	})

	// 优雅退出
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
		case sig := <-quit:
			log.Info("Received signal, shutting down...", "signal", sig)
			cancel()
		}

		app.Client.Close()
		return nil
	})

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("App exited with error", "err", err)
	}
	log.Info("App exited successfully.")
}

// attach 订阅会话更新并打印增量
func attach(sess *chat.Session) {
	sess.OnUpdate(func() {
		if sess.PeerTyping() {
			fmt.Printf("-- %s 正在输入...\n", sess.PeerID())
		}
	})
}

// listConversations 打印会话列表
func listConversations(client *chat.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	items, err := client.Conversations(ctx)
	if err != nil {
		fmt.Printf("-- 会话列表拉取失败: %v\n", err)
		return
	}
	for _, item := range items {
		fmt.Printf("%s  未读 %d  最近: %s\n", item.PeerID, item.UnreadCount, item.LastBody)
	}
}

// render 打印当前会话的消息快照
func render(sess *chat.Session) {
	for _, m := range sess.Messages() {
		marker := " "
		if m.IsOwn {
			switch m.Status {
			case model.StatusSending:
				marker = "…"
			case model.StatusSent:
				marker = "✓"
			case model.StatusDelivered:
				marker = "✓✓"
			case model.StatusError:
				marker = "!"
			}
		}
		fmt.Printf("[%d] %s %s: %s %s\n", m.Seq, m.CreatedAt.Format("15:04:05"), m.SenderID, m.Body, marker)
		if m.Status == model.StatusError && m.Error != "" {
			fmt.Printf("      %s\n", m.Error)
		}
	}
}
