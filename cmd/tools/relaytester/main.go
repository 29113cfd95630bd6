// Command relaytester sends one message through the configured completion
// backend and prints the reply. It reads the same environment as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/clubllm/backend/internal/config"
	"github.com/zhouzirui/clubllm/backend/internal/service/ai"
	"github.com/zhouzirui/clubllm/backend/internal/service/relay"
	"github.com/zhouzirui/clubllm/backend/pkg/logger"
)

func main() {
	message := flag.String("message", "", "要发送的消息")
	stream := flag.Bool("stream", false, "逐段打印流式输出")
	timeout := flag.Duration("timeout", 60*time.Second, "请求超时时间")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, true)
	if envErr != nil {
		log.Warn().Err(envErr).Msg("无法加载 .env，改用系统环境变量")
	}

	if *message == "" {
		flag.Usage()
		log.Fatal().Msg("请通过 -message 提供待发送的消息")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	completer, err := ai.NewCompleter(ctx, cfg.AI)
	if err != nil {
		log.Fatal().Err(err).Msg("模型初始化失败")
	}
	r := relay.New(completer)

	log.Info().Str("provider", cfg.AI.Provider).Bool("stream", *stream).Msg("开始发送")
	started := time.Now()

	var result relay.Result
	if *stream {
		result = r.Stream(ctx, *message, func(delta string) error {
			_, err := fmt.Fprint(os.Stdout, delta)
			return err
		})
		fmt.Fprintln(os.Stdout)
	} else {
		result = r.Send(ctx, *message)
	}

	if result.Outcome != relay.OutcomeOK {
		log.Fatal().Err(result.Err).Stringer("outcome", result.Outcome).Msg("调用失败")
	}
	if !*stream {
		fmt.Fprintln(os.Stdout, result.Text)
	}
	log.Info().Dur("elapsed", time.Since(started)).Int("chars", len(result.Text)).Msg("调用成功")
}
