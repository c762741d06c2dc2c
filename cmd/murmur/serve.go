package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lowkeylabs/murmur/internal/audio"
	"github.com/lowkeylabs/murmur/internal/chat"
	"github.com/lowkeylabs/murmur/internal/logutil"
	"github.com/lowkeylabs/murmur/internal/session"
	"github.com/lowkeylabs/murmur/internal/speech"
	"github.com/lowkeylabs/murmur/internal/telegram"
	"github.com/lowkeylabs/murmur/providers/openai"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram relay (long-poll loop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			token := strings.TrimSpace(viper.GetString("telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("telegram.bot_token is required (env %s_TELEGRAM_BOT_TOKEN)", envPrefix)
			}

			store := session.NewStore(session.Options{
				Window:       viper.GetInt("chat.history_window"),
				SystemPrompt: viper.GetString("chat.system_prompt"),
			})

			client := openai.New(
				viper.GetString("llm.base_url"),
				viper.GetString("llm.api_key"),
			)

			orchestrator, err := chat.NewOrchestrator(chat.Options{
				Sessions:          store,
				Client:            client,
				Model:             viper.GetString("llm.model"),
				RequestTimeout:    viper.GetDuration("llm.request_timeout"),
				HeartbeatInterval: viper.GetDuration("chat.typing_interval"),
				Logger:            logger,
			})
			if err != nil {
				return err
			}

			normalizer := audio.NewNormalizer(audio.Options{
				FFmpegPath: viper.GetString("audio.ffmpeg_path"),
				Logger:     logger,
			})

			transcriber, err := speech.NewTranscriber(speech.Options{
				ModelPath: viper.GetString("speech.model_path"),
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			api := telegram.NewAPI(nil, viper.GetString("telegram.base_url"), token)

			runtime, err := telegram.NewRuntime(telegram.RuntimeOptions{
				API:          api,
				Orchestrator: orchestrator,
				Normalizer:   normalizer,
				Transcriber:  transcriber,
				Logger:       logger,
				PollTimeout:  viper.GetDuration("telegram.poll_timeout"),
				ReplyMaxLen:  viper.GetInt("telegram.reply_max_len"),
				TempDir:      viper.GetString("audio.temp_dir"),
			})
			if err != nil {
				return err
			}

			logger.Info("serve_start",
				"model", viper.GetString("llm.model"),
				"base_url", viper.GetString("llm.base_url"),
				"history_window", viper.GetInt("chat.history_window"),
				"request_timeout", viper.GetDuration("llm.request_timeout").String(),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			err = runtime.Run(ctx)
			logger.Info("serve_stop", "uptime", time.Since(start).String())
			return err
		},
	}
	return cmd
}
