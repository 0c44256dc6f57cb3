package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/assistant"
	"github.com/campus-genai/campusrag/pkg/auth"
	"github.com/campus-genai/campusrag/pkg/rbac"
)

func newChatCmd() *cobra.Command {
	var username, roleFlag string
	var stream bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the campus assistant",
		Long: "Interactive question answering over the indexed documents. Log in with a\n" +
			"portal account, or pass --role to try a role without an account; demo\n" +
			"sessions are not persisted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx := cmd.Context()

			idx, err := openIndex(ctx, cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			var (
				user    models.User
				history assistant.HistoryStore
			)
			if roleFlag != "" {
				role, err := rbac.Parse(roleFlag)
				if err != nil {
					return err
				}
				user = models.User{Username: string(role) + "_user", Role: role}
				color.Yellow("Demo mode: chatting as %s, history is not persisted", user.Username)
			} else {
				creds, err := openAuthStore(ctx, cfg, log)
				if err != nil {
					return fmt.Errorf("%v (or use --role for a demo session)", err)
				}
				defer creds.Close()

				user, err = login(ctx, creds, username)
				if err != nil {
					return err
				}
				history = creds
			}

			streaming := cfg.Chat.Streaming
			if cmd.Flags().Changed("stream") {
				streaming = stream
			}

			asst, err := newAssistant(ctx, cfg, log, idx, history)
			if err != nil {
				return err
			}

			return chatSession(ctx, asst, user, streaming)
		},
	}

	cmd.Flags().StringVar(&username, "user", "", "Username to log in as (password is prompted)")
	cmd.Flags().StringVar(&roleFlag, "role", "", "Demo mode: chat as this role without an account")
	cmd.Flags().BoolVar(&stream, "stream", true, "Stream the answer as it is generated")
	return cmd
}

func login(ctx context.Context, creds *auth.Store, username string) (models.User, error) {
	if username == "" {
		fmt.Print("Username: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return models.User{}, err
		}
		username = strings.TrimSpace(line)
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return models.User{}, err
	}

	user, err := creds.Authenticate(ctx, username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return models.User{}, fmt.Errorf("invalid username or password")
	}
	if err != nil {
		return models.User{}, err
	}

	color.Green("✓ Logged in as %s (%s)", user.Username, user.Role)
	return user, nil
}

func chatSession(ctx context.Context, asst *assistant.Assistant, user models.User, streaming bool) error {
	exchanges, err := asst.History(ctx, user)
	if err != nil {
		color.Yellow("Could not load chat history: %v", err)
	}
	if len(exchanges) > 0 {
		color.Cyan("Restored %d previous turns", len(exchanges))
	}

	printRoleInfo(ctx, asst, user)
	color.Cyan("\nAsk about the campus. Commands: 'exit', 'clear', 'info'")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\n[%s]: ", user.Username)
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit", "q":
			color.Cyan("Goodbye!")
			return nil
		case "clear":
			exchanges = nil
			color.Yellow("Conversation history cleared")
			continue
		case "info":
			printRoleInfo(ctx, asst, user)
			continue
		}

		var answer assistant.Answer
		if streaming {
			spinner := getSpinner(" Thinking...")
			first := true
			answer, err = asst.AskStream(ctx, user, query, exchanges, func(chunk string) error {
				if first {
					spinner.Finish()
					first = false
					fmt.Println()
					assistantPrompt("Assistant: ")
				}
				fmt.Print(chunk)
				return nil
			})
			if first {
				spinner.Finish()
			}
			fmt.Println()
		} else {
			spinner := getSpinner(" Thinking...")
			answer, err = asst.Ask(ctx, user, query, exchanges)
			spinner.Finish()
			fmt.Println()
			if err == nil {
				assistantPrompt("Assistant: %s\n", answer.Text)
			}
		}
		if err != nil {
			color.Red("Error: %v", err)
			continue
		}

		if len(answer.Sources) > 0 {
			color.Yellow("Sources: %s", strings.Join(answer.Sources, ", "))
		}

		exchanges = append(exchanges, models.Exchange{Question: query, Answer: answer.Text})
	}
	return scanner.Err()
}

func printRoleInfo(ctx context.Context, asst *assistant.Assistant, user models.User) {
	color.Cyan("\nRole: %s", user.Role)
	fmt.Printf("Access: %s\n", rbac.Description(user.Role))

	counts, err := asst.Access(ctx, user.Role)
	if err != nil {
		return
	}
	for _, role := range rbac.Roles() {
		if n, ok := counts[role]; ok {
			fmt.Printf("  %-10s %d chunks\n", role, n)
		}
	}
}
