package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"expohub/internal/listing"
	"expohub/internal/models"
	"expohub/internal/reaction"
)

// ----------------------------
// Auth
// ----------------------------

func (r *runner) registerCmd() *cobra.Command {
	var email, password, confirm string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = r.run(func(ctx context.Context, _ []string) error {
		res := r.holder.SignUp(ctx, email, password, confirm)
		if !res.OK() {
			return errors.New(res.Error)
		}
		r.session.SetUser(res.User)
		fmt.Fprintf(r.out, "Welcome, %s!\n", res.User.Username)
		return nil
	})
	cmd.Flags().StringVar(&email, "email", "", "e-mail address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&confirm, "confirm", "", "password again")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("confirm")
	return cmd
}

func (r *runner) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with e-mail and password",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = r.run(func(ctx context.Context, _ []string) error {
		res := r.holder.SignIn(ctx, email, password)
		if !res.OK() {
			return errors.New(res.Error)
		}
		r.session.SetUser(res.User)
		fmt.Fprintf(r.out, "Signed in as %s\n", res.User.Username)
		return nil
	})
	cmd.Flags().StringVar(&email, "email", "", "e-mail address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (r *runner) logoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = r.run(func(ctx context.Context, _ []string) error {
		if !r.holder.IsAuthenticated() {
			fmt.Fprintln(r.out, "Not signed in")
			return nil
		}
		if res := r.holder.SignOut(ctx); !res.OK() {
			return errors.New(res.Error)
		}
		if path, ok := r.waitNavigation(time.Second); ok {
			fmt.Fprintf(r.out, "Signed out, back to %s\n", path)
			return nil
		}
		fmt.Fprintln(r.out, "Signed out")
		return nil
	})
	return cmd
}

func (r *runner) whoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = r.run(func(context.Context, []string) error {
		st := r.holder.State()
		switch {
		case st.Error != "":
			return errors.New(st.Error)
		case st.User == nil:
			fmt.Fprintln(r.out, "Not signed in")
		default:
			fmt.Fprintf(r.out, "%s <%s>\n", st.User.Username, st.User.Email)
		}
		return nil
	})
	return cmd
}

// ----------------------------
// Browsing
// ----------------------------

func (r *runner) listCmd() *cobra.Command {
	var (
		ads           bool
		sortBy        string
		limit, offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expositions or sale ads, newest first",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = r.run(func(ctx context.Context, _ []string) error {
		by, ok := listing.ParseSortBy(sortBy)
		if !ok {
			return fmt.Errorf("unknown sort %q (newest, oldest, mostLiked, alphabetical)", sortBy)
		}
		items, err := r.client.Listings(categoryOf(ads)).GetAll(ctx, listing.Page{Limit: limit, Offset: offset})
		if err != nil {
			return err
		}
		r.table(listing.Sort(items, by), ads)
		return nil
	})
	cmd.Flags().BoolVar(&ads, "ads", false, "sale ads instead of expositions")
	cmd.Flags().StringVar(&sortBy, "sort", string(listing.Newest), "newest, oldest, mostLiked or alphabetical")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func (r *runner) searchCmd() *cobra.Command {
	var ads bool
	cmd := &cobra.Command{
		Use:   "search TEXT",
		Short: "Find listings whose title or description contains TEXT",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = r.run(func(ctx context.Context, args []string) error {
		items, err := r.client.Listings(categoryOf(ads)).Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		r.table(items, ads)
		return nil
	})
	cmd.Flags().BoolVar(&ads, "ads", false, "sale ads instead of expositions")
	return cmd
}

func (r *runner) table(items []models.Listing, ads bool) {
	if len(items) == 0 {
		fmt.Fprintln(r.out, "No listings found")
		return
	}
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	header := "ID\tTITLE\tLIKES\tDISLIKES\tIMAGES\tPREVIEW"
	if ads {
		header += "\tPRICE"
	}
	fmt.Fprintln(tw, header)
	for _, l := range items {
		row := fmt.Sprintf("%s\t%s\t%d\t%d\t%d\t%s", l.ID, l.Title, l.Likes, l.Dislikes,
			listing.ImageCount(l), listing.PreviewImage(l))
		if ads {
			row += "\t" + price(l.Price)
		}
		fmt.Fprintln(tw, row)
	}
	_ = tw.Flush()
}

func price(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func (r *runner) showCmd() *cobra.Command {
	var ads bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one listing with its comments",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = r.run(func(ctx context.Context, args []string) error {
		gw := r.client.Listings(categoryOf(ads))
		l, err := gw.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s\n%s\n\n", l.Title, strings.Repeat("=", len([]rune(l.Title))))
		if l.Description != "" {
			fmt.Fprintf(r.out, "%s\n\n", l.Description)
		}
		if ads {
			fmt.Fprintf(r.out, "Price:    %s\n", price(l.Price))
		}
		fmt.Fprintf(r.out, "Posted:   %s\n", l.CreatedAt.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(r.out, "Likes:    %d   Dislikes: %d\n", l.Likes, l.Dislikes)
		fmt.Fprintf(r.out, "Images:   %d\n", listing.ImageCount(l))
		for _, img := range l.Images {
			fmt.Fprintf(r.out, "  %s\n", img)
		}
		if r.holder.IsAuthenticated() {
			if o, err := gw.Reaction(ctx, l.ID); err == nil {
				fmt.Fprintf(r.out, "You:      %s\n", stance(o))
			}
		}
		if len(l.Comments) > 0 {
			fmt.Fprintf(r.out, "\nComments (%d)\n", len(l.Comments))
			for _, c := range l.Comments {
				fmt.Fprintf(r.out, "  %s, %s: %s\n", c.Username, c.CreatedAt.Local().Format("2006-01-02"), c.Comment)
			}
		}
		return nil
	})
	cmd.Flags().BoolVar(&ads, "ads", false, "sale ads instead of expositions")
	return cmd
}

func stance(o reaction.Outcome) string {
	switch {
	case o.UserLiked:
		return "liked"
	case o.UserDisliked:
		return "disliked"
	}
	return "no reaction"
}

// ----------------------------
// Writes
// ----------------------------

func (r *runner) createCmd() *cobra.Command {
	var (
		ads      bool
		dto      models.CreateListing
		priceVal float64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a new listing",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = r.run(func(ctx context.Context, _ []string) error {
		if _, err := r.requireUser(); err != nil {
			return err
		}
		c := categoryOf(ads)
		if c == models.SaleAds && cmd.Flags().Changed("price") {
			dto.Price = &priceVal
		}
		dto.Title = strings.TrimSpace(dto.Title)
		if err := listing.ValidateCreate(c, dto); err != nil {
			return err
		}
		l, err := r.client.Listings(c).Create(ctx, dto)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Created %s\n", l.ID)
		return nil
	})
	f := cmd.Flags()
	f.BoolVar(&ads, "ads", false, "create a sale ad")
	f.StringVar(&dto.Title, "title", "", "title (at least 3 characters)")
	f.StringVar(&dto.Description, "description", "", "description (up to 1000 characters)")
	f.StringArrayVar(&dto.Images, "image", nil, "image URL, repeatable")
	f.Float64Var(&priceVal, "price", 0, "asking price (sale ads)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func (r *runner) editCmd() *cobra.Command {
	var (
		ads         bool
		title, desc string
		images      []string
		priceVal    float64
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change the fields given as flags",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = r.run(func(ctx context.Context, args []string) error {
		if _, err := r.requireUser(); err != nil {
			return err
		}
		c := categoryOf(ads)
		var patch models.UpdateListing
		f := cmd.Flags()
		if f.Changed("title") {
			t := strings.TrimSpace(title)
			patch.Title = &t
		}
		if f.Changed("description") {
			patch.Description = &desc
		}
		if f.Changed("image") {
			patch.Images = &images
		}
		if f.Changed("price") {
			patch.Price = &priceVal
		}
		if err := listing.ValidateUpdate(c, patch); err != nil {
			return err
		}
		l, err := r.client.Listings(c).Update(ctx, args[0], patch)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Updated %s\n", l.ID)
		return nil
	})
	f := cmd.Flags()
	f.BoolVar(&ads, "ads", false, "the listing is a sale ad")
	f.StringVar(&title, "title", "", "new title")
	f.StringVar(&desc, "description", "", "new description")
	f.StringArrayVar(&images, "image", nil, "replacement image URLs, repeatable")
	f.Float64Var(&priceVal, "price", 0, "new price (sale ads)")
	return cmd
}

func (r *runner) deleteCmd() *cobra.Command {
	var ads bool
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one of your listings",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = r.run(func(ctx context.Context, args []string) error {
		if _, err := r.requireUser(); err != nil {
			return err
		}
		if err := r.client.Listings(categoryOf(ads)).Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Deleted %s\n", args[0])
		return nil
	})
	cmd.Flags().BoolVar(&ads, "ads", false, "the listing is a sale ad")
	return cmd
}

func (r *runner) reactCmd(name string, kind models.Kind) *cobra.Command {
	var ads bool
	cmd := &cobra.Command{
		Use:   name + " ID",
		Short: "Toggle your " + name + " on a listing",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = r.run(func(ctx context.Context, args []string) error {
		if _, err := r.requireUser(); err != nil {
			return err
		}
		gw := r.client.Listings(categoryOf(ads))
		toggle := gw.ToggleLike
		if kind == models.Dislike {
			toggle = gw.ToggleDislike
		}
		o, err := toggle(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Likes: %d  Dislikes: %d  (%s)\n", o.Likes, o.Dislikes, stance(o))
		return nil
	})
	cmd.Flags().BoolVar(&ads, "ads", false, "the listing is a sale ad")
	return cmd
}

func (r *runner) commentCmd() *cobra.Command {
	var ads bool
	cmd := &cobra.Command{
		Use:   "comment ID TEXT",
		Short: "Add a comment to a listing",
		Args:  cobra.MinimumNArgs(2),
	}
	cmd.RunE = r.run(func(ctx context.Context, args []string) error {
		if _, err := r.requireUser(); err != nil {
			return err
		}
		l, err := r.client.Listings(categoryOf(ads)).AddComment(ctx, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%d comments on %s\n", len(l.Comments), l.Title)
		return nil
	})
	cmd.Flags().BoolVar(&ads, "ads", false, "the listing is a sale ad")
	return cmd
}

func (r *runner) dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize your own listings",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = r.run(func(ctx context.Context, _ []string) error {
		u, err := r.requireUser()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Dashboard for %s\n", u.Username)
		for _, c := range []models.Category{models.Expositions, models.SaleAds} {
			items, err := r.client.Listings(c).GetByUserID(ctx, u.ID)
			if err != nil {
				return err
			}
			s := listing.Summarize(items)
			last := "never"
			if s.LastActivity != nil {
				last = s.LastActivity.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(r.out, "\n%s: %d listings, %d images, %d likes, last activity %s\n",
				c.Path(), s.Total, s.TotalImages, s.TotalLikes, last)
			for _, l := range s.Recent {
				fmt.Fprintf(r.out, "  %s  %s\n", l.ID, l.Title)
			}
		}
		return nil
	})
	return cmd
}

func (r *runner) uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload an image and print its public URL",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = r.run(func(ctx context.Context, args []string) error {
		if _, err := r.requireUser(); err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(args[0])))
		if ct == "" {
			head := make([]byte, 512)
			n, _ := f.Read(head)
			ct = http.DetectContentType(head[:n])
			if _, err := f.Seek(0, 0); err != nil {
				return err
			}
		}
		up, err := r.client.UploadImage(ctx, args[0], ct, f)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.out, up.URL)
		return nil
	})
	return cmd
}

func (r *runner) unuploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unupload KEY",
		Short: "Delete an uploaded image by its key",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = r.run(func(ctx context.Context, args []string) error {
		if _, err := r.requireUser(); err != nil {
			return err
		}
		if err := r.client.DeleteImage(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Deleted %s\n", args[0])
		return nil
	})
	return cmd
}
