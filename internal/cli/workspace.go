package cli

import (
	"fmt"

	"reelforge/internal/config"
	"reelforge/internal/media"
	"reelforge/internal/paths"
	"reelforge/pkg/content"
)

// workspaceInputs bundles everything a render or plan needs from disk.
type workspaceInputs struct {
	Paths    paths.Workspace
	Config   config.Config
	Template content.Template
	Summary  content.Summary
	Bundle   media.Bundle
}

func loadWorkspace() (workspaceInputs, error) {
	pp, err := paths.Resolve(workspaceDir)
	if err != nil {
		return workspaceInputs{}, err
	}

	cfg, err := config.Load(pp.ConfigFile)
	if err != nil {
		return workspaceInputs{}, err
	}

	tmpl, err := content.LoadTemplate(pp.TemplateFile)
	if err != nil {
		return workspaceInputs{}, fmt.Errorf("load template: %w", err)
	}

	summary, err := content.LoadSummary(pp.ContentFile)
	if err != nil {
		return workspaceInputs{}, fmt.Errorf("load content summary: %w", err)
	}

	bundle, err := media.FromDir(pp.MediaDir)
	if err != nil {
		return workspaceInputs{}, fmt.Errorf("load media bundle: %w", err)
	}

	return workspaceInputs{
		Paths:    pp,
		Config:   cfg,
		Template: tmpl,
		Summary:  summary,
		Bundle:   bundle,
	}, nil
}
