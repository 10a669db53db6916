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

// scopekit 是 syncd 状态 API 的命令行客户端。
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bosmith517/scopekit/pkg/config"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd 构建命令树；输出写入 stdout/stderr 便于测试
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var apiURL string
	root := &cobra.Command{
		Use:           "scopekit",
		Short:         "查看与操作本机 syncd 的离线同步队列和估算作业",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&apiURL, "api", "", "syncd 地址（默认 $SCOPEKIT_API_URL 或 "+defaultAPIURL+"）")

	client := func() *apiClient { return newClient(apiBaseURL(apiURL)) }
	// show 包装一次 API 调用：成功输出 JSON，失败写 stderr
	show := func(fn func(c *apiClient) (interface{}, error)) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			out, err := fn(client())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "请求失败: %v\n", err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(out))
			return nil
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "scopekit "+version)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "config <path>",
		Short: "校验配置文件并显示概要",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "加载配置失败: %v\n", err)
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "api.port=%d\n", cfg.API.Port)
			fmt.Fprintf(w, "remote.base_url=%s\n", cfg.Remote.BaseURL)
			fmt.Fprintf(w, "storage.queue.type=%s\n", cfg.Storage.Queue.Type)
			fmt.Fprintf(w, "storage.blob.type=%s\n", cfg.Storage.Blob.Type)
			fmt.Fprintf(w, "sync.max_attempts=%d\n", cfg.Sync.MaxAttempts)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "同步状态概要（在线、队列长度、进度）",
		Args:  cobra.NoArgs,
		RunE:  show(func(c *apiClient) (interface{}, error) { return c.status() }),
	})
	root.AddCommand(&cobra.Command{
		Use:   "items",
		Short: "列出队列项",
		Args:  cobra.NoArgs,
		RunE:  show(func(c *apiClient) (interface{}, error) { return c.items() }),
	})
	root.AddCommand(&cobra.Command{
		Use:   "orphans",
		Short: "列出 blob 缺失的队列项",
		Args:  cobra.NoArgs,
		RunE:  show(func(c *apiClient) (interface{}, error) { return c.orphans() }),
	})

	var wait bool
	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "请求立即 drain；--wait 等待本轮结束并输出报告",
		Args:  cobra.NoArgs,
		RunE:  show(func(c *apiClient) (interface{}, error) { return c.drain(wait) }),
	}
	drainCmd.Flags().BoolVar(&wait, "wait", false, "同步等待 drain 完成")
	root.AddCommand(drainCmd)

	root.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "清空队列（不可恢复）",
		Args:  cobra.NoArgs,
		RunE:  show(func(c *apiClient) (interface{}, error) { return c.clear() }),
	})
	root.AddCommand(&cobra.Command{
		Use:   "discard <item_id>",
		Short: "丢弃单个队列项及其 blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(func(c *apiClient) (interface{}, error) { return c.discard(args[0]) })(cmd, args)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "estimate <visit_id>",
		Short: "查看 visit 的估算（本地缓存优先）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(func(c *apiClient) (interface{}, error) { return c.estimate(args[0]) })(cmd, args)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "trigger <visit_id>",
		Short: "触发估算；离线时进入队列",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(func(c *apiClient) (interface{}, error) { return c.triggerEstimation(args[0]) })(cmd, args)
		},
	})

	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "列出本地估算作业",
		Args:  cobra.NoArgs,
		RunE:  show(func(c *apiClient) (interface{}, error) { return c.jobs() }),
	}
	jobsCmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "重试所有 queued 作业",
		Args:  cobra.NoArgs,
		RunE:  show(func(c *apiClient) (interface{}, error) { return c.processJobs() }),
	})
	root.AddCommand(jobsCmd)

	return root
}
