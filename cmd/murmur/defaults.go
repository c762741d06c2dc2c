package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// LLM backend (OpenAI-compatible chat completions).
	viper.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("llm.model", "google/gemini-2.0-flash-001")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.request_timeout", 90*time.Second)

	// Conversation
	viper.SetDefault("chat.history_window", 25)
	viper.SetDefault("chat.system_prompt",
		"You are a helpful AI assistant. Answer only the latest question directly, using earlier messages as context.")
	viper.SetDefault("chat.typing_interval", 5*time.Second)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.base_url", "")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.reply_max_len", 4000)

	// Voice pipeline
	viper.SetDefault("speech.model_path", "./vosk-model")
	viper.SetDefault("audio.ffmpeg_path", "ffmpeg")
	viper.SetDefault("audio.temp_dir", "")
}
