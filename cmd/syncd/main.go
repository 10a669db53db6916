// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// syncd 在采集设备上常驻：维护离线队列、探测连通性、连网后 drain 并触发估算。
// 使用：go run ./cmd/syncd -config configs/syncd.yaml
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosmith517/scopekit/internal/app/syncd"
	"github.com/bosmith517/scopekit/pkg/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("SCOPEKIT_CONFIG"), "配置文件路径（为空则使用默认配置）")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("加载配置失败: %v", err)
		}
		cfg = loaded
	}

	application, err := syncd.NewApp(cfg)
	if err != nil {
		log.Fatalf("创建 syncd 失败: %v", err)
	}
	if err := application.Start(); err != nil {
		log.Fatalf("启动 syncd 失败: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		log.Printf("关闭失败: %v", err)
	}
	log.Println("syncd 已关闭")
}
