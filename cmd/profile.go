package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rtzll/youpac/internal"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the creator profile used to personalize content",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the creator profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		p, err := app.GetProfile(cmd.Context())
		if errors.Is(err, internal.ErrNotFound) {
			fmt.Println("No profile yet. Create one with `youpac profile set`.")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("Channel:  %s\n", p.ChannelName)
		fmt.Printf("Content:  %s\n", p.ContentType)
		fmt.Printf("Niche:    %s\n", p.Niche)
		if p.Tone != "" {
			fmt.Printf("Tone:     %s\n", p.Tone)
		}
		if p.TargetAudience != "" {
			fmt.Printf("Audience: %s\n", p.TargetAudience)
		}
		for _, link := range p.Links {
			fmt.Printf("Link:     %s\n", link)
		}
		if p.Context != "" {
			fmt.Printf("\n%s\n", p.Context)
		}
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update the creator profile",
	Example: `  youpac profile set --channel "Gopher Talks" --content-type tutorials --niche "Go programming"
  youpac profile set --tone casual --audience "backend developers" --link https://gophertalks.dev`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		p, err := app.GetProfile(cmd.Context())
		if errors.Is(err, internal.ErrNotFound) {
			p = &internal.Profile{}
		} else if err != nil {
			return err
		}

		flags := cmd.Flags()
		setString := func(name string, field *string) {
			if flags.Changed(name) {
				*field, _ = flags.GetString(name)
			}
		}
		setString("channel", &p.ChannelName)
		setString("content-type", &p.ContentType)
		setString("niche", &p.Niche)
		setString("tone", &p.Tone)
		setString("audience", &p.TargetAudience)
		setString("context", &p.Context)
		if flags.Changed("link") {
			p.Links, _ = flags.GetStringSlice("link")
		}

		if strings.TrimSpace(p.ChannelName) == "" {
			return fmt.Errorf("--channel is required")
		}

		if err := app.SaveProfile(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Printf("Saved profile for %s\n", p.ChannelName)
		return nil
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Fill the profile context by scraping a web page",
	Long: `Scrape a page about your channel (an about page, a personal site) with
the configured scraping service and store its text as profile context.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		p, err := app.ImportProfileContext(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d characters of context for %s\n", len(p.Context), p.ChannelName)
		return nil
	},
}

func init() {
	profileSetCmd.Flags().String("channel", "", "Channel name")
	profileSetCmd.Flags().String("content-type", "", "Kind of content (tutorials, vlogs, reviews, ...)")
	profileSetCmd.Flags().String("niche", "", "Channel niche")
	profileSetCmd.Flags().String("tone", "", "Preferred tone of voice")
	profileSetCmd.Flags().String("audience", "", "Target audience")
	profileSetCmd.Flags().String("context", "", "Free-form context about the channel")
	profileSetCmd.Flags().StringSlice("link", nil, "Channel or social links (repeatable)")

	profileCmd.AddCommand(profileShowCmd, profileSetCmd, profileImportCmd)
	rootCmd.AddCommand(profileCmd)
}
