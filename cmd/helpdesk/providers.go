package main

// Provider blank imports. Each import activates a self-registering
// notification adapter. Add new providers here as they are implemented.

import (
	_ "github.com/resolveq/helpdesk/internal/adapter/email"
	_ "github.com/resolveq/helpdesk/internal/adapter/slack"
)
