package cmd

import (
	"fmt"

	"github.com/LENAX/stageflow/pkg/cli/output"
	"github.com/spf13/cobra"
)

// 版本信息（编译时注入）
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var versionRemote bool

// versionCmd version命令
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := output.Writer
		fmt.Fprintf(w, "Stageflow CLI\n")
		fmt.Fprintf(w, "  Version:    %s\n", Version)
		fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
		if !versionRemote {
			return nil
		}

		health, err := newClient().Health()
		if err != nil {
			output.Error("连接服务器失败: %v", err)
			return err
		}
		fmt.Fprintf(w, "\nServer %s\n", serverURL)
		fmt.Fprintf(w, "  Version:    %s\n", health.Version)
		fmt.Fprintf(w, "  Status:     %s\n", health.Status)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionRemote, "remote", false, "同时查询服务器版本")
}
