package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clawmate/clawmate/internal/llm"
)

var (
	chatModel  string
	chatStream bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Send a one-shot prompt to the model backend",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, defaultModel := newLLMClient(cfg)
	if client == nil {
		return llm.ErrNoBackend
	}

	model := chatModel
	if model == "" {
		model = defaultModel
	}
	prompt := strings.Join(args, " ")

	if chatStream {
		err := client.ChatStream(cmd.Context(), []llm.Message{{Role: "user", Content: prompt}}, model, func(delta string) error {
			fmt.Print(delta)
			return nil
		})
		fmt.Println()
		return err
	}

	reply, err := llm.Prompt(cmd.Context(), client, prompt, model)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

func init() {
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Model override")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "Stream the reply as it generates")
}
