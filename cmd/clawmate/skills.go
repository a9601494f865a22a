package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clawmate/clawmate/internal/skills"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect the skill registry",
	RunE:  runSkillsList,
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded skills",
	RunE:  runSkillsList,
}

var skillsToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List all tools across loaded skills",
	RunE:  runSkillsTools,
}

func loadRegistry() (*skills.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	registry := skills.NewRegistry(cfg.Skills.Dir)
	if err := registry.Load(); err != nil {
		return nil, err
	}
	return registry, nil
}

func runSkillsList(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}

	loaded := registry.List()
	if len(loaded) == 0 {
		fmt.Printf("no skills loaded from %s\n", registry.Dir())
		return nil
	}

	for _, skill := range loaded {
		color.Cyan("%s v%s", skill.Name, skill.Version)
		if skill.Description != "" {
			fmt.Printf("  %s\n", skill.Description)
		}
		if len(skill.Tools) > 0 {
			fmt.Printf("  tools: %v\n", skill.Tools)
		}
	}
	return nil
}

var skillsRunCmd = &cobra.Command{
	Use:   "run <skill>",
	Short: "Run a skill's entrypoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkillsRun,
}

func runSkillsRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := newBackend(cfg)
	if err != nil {
		return err
	}

	req, err := b.registry.Command(args[0])
	if err != nil {
		return err
	}
	if verdict := b.policy.Vet(req.CommandLine(), false); !verdict.Allowed() {
		return fmt.Errorf("skill entrypoint rejected: %s", verdict.Reason)
	}

	result := b.executor.Execute(cmd.Context(), req)
	fmt.Print(result.Stdout)
	if result.Stderr != "" {
		color.Red("%s", result.Stderr)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("exit code %d", result.ExitCode)
	}
	return nil
}

func runSkillsTools(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	for _, tool := range registry.Tools() {
		skill, _ := registry.ByTool(tool)
		fmt.Printf("%s (%s)\n", tool, skill.Name)
	}
	return nil
}

func init() {
	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsToolsCmd)
	skillsCmd.AddCommand(skillsRunCmd)
}
