package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"qrattend/internal/auth"
	"qrattend/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with bearer tokens",
}

var (
	tokenSubject string
	tokenRole    string
	tokenName    string
	tokenRoll    string
	tokenTTL     time.Duration
)

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an access token for a teacher, student or admin",
	Example: `  attendctl token issue --sub t-1 --role teacher --name "Dr. Rao"
  attendctl token issue --sub s-42 --role student --name Asha --roll CS-042 --ttl 2h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.AccessTTL
		}
		pair, err := auth.Issue(auth.Identity{
			ID:         tokenSubject,
			Role:       tokenRole,
			Name:       tokenName,
			RollNumber: tokenRoll,
		}, cfg.JWTIssuer, cfg.JWTSigningKey, ttl, cfg.RefreshTTL)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, pair.AccessToken)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", pair.AccessExp.Format(time.RFC3339))
		return nil
	},
}

func init() {
	f := tokenIssueCmd.Flags()
	f.StringVar(&tokenSubject, "sub", "", "user id (required)")
	f.StringVar(&tokenRole, "role", auth.RoleStudent, "teacher, student or admin")
	f.StringVar(&tokenName, "name", "", "display name recorded with attendance")
	f.StringVar(&tokenRoll, "roll", "", "student roll number")
	f.DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default ACCESS_TTL)")
	tokenIssueCmd.MarkFlagRequired("sub")

	tokenCmd.AddCommand(tokenIssueCmd)
}
