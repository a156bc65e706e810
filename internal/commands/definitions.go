package commands

import "github.com/bwmarrin/discordgo"

func GetCommands() []*discordgo.ApplicationCommand {
	sessionOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "session",
		Description: "Session ID",
		Required:    true,
	}
	transferOpt := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "transfer",
		Description: "Transfer ID (e.g. t1)",
		Required:    true,
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:         "pool",
			Description:  "Stake pool settlement",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show participants, payouts and transfers",
					Options:     []*discordgo.ApplicationCommandOption{sessionOpt},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "sent",
					Description: "Mark a transfer as paid",
					Options:     []*discordgo.ApplicationCommandOption{sessionOpt, transferOpt},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "confirm",
					Description: "Confirm a payment was received",
					Options:     []*discordgo.ApplicationCommandOption{sessionOpt, transferOpt},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "dispute",
					Description: "Dispute a transfer",
					Options:     []*discordgo.ApplicationCommandOption{sessionOpt, transferOpt},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "link",
					Description: "Get a Venmo payment link for a transfer",
					Options: []*discordgo.ApplicationCommandOption{
						sessionOpt,
						transferOpt,
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "note",
							Description: "Payment note",
						},
					},
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
