package catalog

// UsersTable is the synthetic table holding the single account.
const UsersTable = "users"

// ProfilePath is the built-in location of the account profile.
const ProfilePath = "Profile And Settings.Profile Info.ProfileMap"

func cols(pairs ...string) []Column {
	out := make([]Column, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Column{Source: pairs[i], Target: pairs[i+1]})
	}
	return out
}

var builtinEntries = []Entry{
	{
		Path: ProfilePath, Table: UsersTable, Mode: Plain,
		Columns: cols(
			"userName", "username",
			"displayName", "display_name",
			"emailAddress", "email",
			"bioDescription", "bio_description",
			"birthDate", "birth_date",
			"accountRegion", "account_region",
			"followerCount", "follower_count",
			"followingCount", "following_count",
		),
		DateFields:    []string{"birth_date"},
		NumericFields: []string{"follower_count", "following_count"},
	},
	{
		Path: "Comment.Comments.CommentsList", Table: "comments", Mode: Array,
		Columns:    cols("date", "comment_date", "comment", "comment_text", "photo", "photo_url", "url", "video_url"),
		DateFields: []string{"comment_date"},
	},
	{
		Path: "Direct Message.Direct Messages.ChatHistory", Table: "direct_messages", Mode: DynamicKeyedMap,
		DynamicKeyColumn: "chat_identifier",
		Columns:          cols("Date", "message_date", "From", "sender_username", "Content", "message_content"),
		DateFields:       []string{"message_date"},
	},
	{
		Path: "Direct Message.Group Chat.GroupChat", Table: "group_chats", Mode: DynamicKeyedMap,
		DynamicKeyColumn: "group_chat_identifier",
		Columns:          cols("Date", "message_date", "From", "sender_username", "Content", "message_content"),
		DateFields:       []string{"message_date"},
	},
	{
		Path: "Income+ Wallet.Coin Purchase History.CoinPurchaseHistoryList", Table: "coin_purchases", Mode: Array,
		Columns:       cols("Date", "purchase_date", "Type", "purchase_type", "CoinAmount", "coin_amount"),
		DateFields:    []string{"purchase_date"},
		NumericFields: []string{"coin_amount"},
	},
	{
		Path: "Likes and Favorites.Favorite Collection.FavoriteCollectionList", Table: "favorite_collections", Mode: Array,
		Columns:    cols("Date", "favorite_date", "FavoriteCollection", "collection_name"),
		DateFields: []string{"favorite_date"},
	},
	{
		Path: "Likes and Favorites.Favorite Comment.FavoriteCommentList", Table: "favorite_comments", Mode: Array,
		Columns: cols("FavoriteComment", "comment_text"),
	},
	{
		Path: "Likes and Favorites.Favorite Effects.FavoriteEffectsList", Table: "favorite_effects", Mode: Array,
		Columns:    cols("Date", "effect_date", "EffectLink", "effect_link"),
		DateFields: []string{"effect_date"},
	},
	{
		Path: "Likes and Favorites.Favorite Hashtags.FavoriteHashtagList", Table: "favorite_hashtags", Mode: Array,
		Columns:    cols("Date", "favorite_date", "Link", "hashtag_link"),
		DateFields: []string{"favorite_date"},
	},
	{
		Path: "Likes and Favorites.Favorite Sounds.FavoriteSoundList", Table: "favorite_sounds", Mode: Array,
		Columns:    cols("Date", "favorite_date", "Link", "sound_link"),
		DateFields: []string{"favorite_date"},
	},
	{
		Path: "Likes and Favorites.Favorite Videos.FavoriteVideoList", Table: "favorite_videos", Mode: Array,
		Columns:    cols("Date", "favorite_date", "Link", "video_link"),
		DateFields: []string{"favorite_date"},
	},
	{
		Path: "Likes and Favorites.Like List.ItemFavoriteList", Table: "liked_videos", Mode: Array,
		Columns:    cols("date", "like_date", "link", "video_link"),
		DateFields: []string{"like_date"},
	},
	{
		Path: "Post.Posts.VideoList", Table: "posts", Mode: Array,
		Columns: cols(
			"Date", "post_date",
			"Link", "video_link",
			"Likes", "likes_count",
			"WhoCanView", "who_can_view",
			"AllowComments", "allow_comments",
			"AllowStitches", "allow_stitches",
			"AllowDuets", "allow_duets",
			"AllowStickers", "allow_stickers",
			"AllowSharingToStory", "allow_sharing_to_story",
			"ContentDisclosure", "content_disclosure",
		),
		DateFields:    []string{"post_date"},
		NumericFields: []string{"likes_count"},
	},
	{
		Path: "Post.Recently Deleted Posts.PostList", Table: "deleted_posts", Mode: Array,
		Columns: cols(
			"Date", "post_date",
			"DateDeleted", "delete_date",
			"Link", "video_link",
			"Likes", "likes_count",
			"ContentDisclosure", "content_disclosure",
			"AIGeneratedContent", "ai_generated",
			"Sound", "sound_used",
			"Location", "location",
			"Title", "title",
			"AddYoursText", "add_yours_text",
		),
		DateFields:    []string{"post_date", "delete_date"},
		NumericFields: []string{"likes_count"},
	},
	{
		Path: "Profile And Settings.Block List.BlockList", Table: "blocked_users", Mode: Array,
		Columns:    cols("Date", "block_date", "UserName", "blocked_username"),
		DateFields: []string{"block_date"},
	},
	{
		Path: "Profile And Settings.Follower.FansList", Table: "followers", Mode: Array,
		Columns:    cols("Date", "follow_date", "UserName", "follower_username"),
		DateFields: []string{"follow_date"},
	},
	{
		Path: "Profile And Settings.Following.Following", Table: "following", Mode: Array,
		Columns:    cols("Date", "follow_date", "UserName", "following_username"),
		DateFields: []string{"follow_date"},
	},
	{
		Path: "TikTok Live.Go Live History.GoLiveList", Table: "live_sessions", Mode: Array,
		Columns: cols(
			"LiveStartTime", "live_start_time",
			"RoomId", "room_id",
			"CoverUri", "cover_uri",
			"ReplayUrl", "replay_url",
			"TotalEarning", "total_earning",
			"LiveEndTime", "live_end_time",
			"TotalLike", "total_likes",
			"TotalView", "total_views",
			"QualitySetting", "quality_setting",
			"RoomTitle", "room_title",
		),
		DateFields:    []string{"live_start_time", "live_end_time"},
		NumericFields: []string{"total_likes", "total_views"},
	},
	{
		Path: "TikTok Live.Watch Live History.WatchLiveMap", Table: "watched_lives", Mode: DynamicKeyedMap,
		DynamicKeyColumn: "room_id",
		Columns:          cols("WatchTime", "watch_time", "Link", "live_link"),
		DateFields:       []string{"watch_time"},
	},
	{
		Path: "TikTok Live.Watch Live History.WatchLiveMap.*.Comments", Table: "live_comments", Mode: NestedArrayUnderDynamicKey,
		ParentKeyColumn: "room_id",
		Columns:         cols("CommentTime", "comment_time", "CommentContent", "comment_content", "RawTime", "raw_time"),
		DateFields:      []string{"comment_time"},
		IntegerFields:   []string{"raw_time"},
	},
	{
		Path: "Your Activity.Searches.SearchList", Table: "searches", Mode: Array,
		Columns:    cols("Date", "search_date", "SearchTerm", "search_term"),
		DateFields: []string{"search_date"},
	},
	{
		Path: "Your Activity.Login History.LoginHistoryList", Table: "login_history", Mode: Array,
		Columns: cols(
			"Date", "login_date",
			"IP", "ip_address",
			"DeviceModel", "device_model",
			"DeviceSystem", "device_system",
			"NetworkType", "network_type",
			"Carrier", "carrier",
		),
		DateFields: []string{"login_date"},
	},
	{
		Path: "Your Activity.Hashtag.HashtagList", Table: "user_hashtags", Mode: Array,
		Columns: cols("HashtagName", "hashtag_name", "HashtagLink", "hashtag_link"),
	},
	{
		Path: "Your Activity.Reposts.RepostList", Table: "reposts", Mode: Array,
		Columns:    cols("Date", "repost_date", "Link", "video_link"),
		DateFields: []string{"repost_date"},
	},
	{
		Path: "Your Activity.Share History.ShareHistoryList", Table: "share_history", Mode: Array,
		Columns:    cols("Date", "share_date", "SharedContent", "shared_content", "Link", "shared_link", "Method", "share_method"),
		DateFields: []string{"share_date"},
	},
	{
		Path: "Your Activity.Purchases.SendGifts.SendGifts", Table: "sent_gifts", Mode: Array,
		Columns:       cols("Date", "send_date", "GiftAmount", "gift_amount", "UserName", "recipient_username"),
		DateFields:    []string{"send_date"},
		NumericFields: []string{"gift_amount"},
	},
	{
		Path: "Your Activity.Purchases.BuyGifts.BuyGifts", Table: "purchased_gifts", Mode: Array,
		Columns:       cols("Date", "purchase_date", "Price", "price"),
		DateFields:    []string{"purchase_date"},
		NumericFields: []string{"price"},
	},
	{
		Path: "TikTok Shop.Product Browsing History.ProductBrowsingHistories", Table: "product_browsing", Mode: Array,
		Columns:    cols("browsing_date", "browsing_date", "shop_name", "shop_name", "product_name", "product_name"),
		DateFields: []string{"browsing_date"},
	},
}

// Builtin returns the catalog for the standard account export.
func Builtin() *Catalog {
	c, err := New(ProfilePath, builtinEntries)
	if err != nil {
		panic(err)
	}
	return c
}

var primaryKeys = map[string]string{
	"users":                "user_id",
	"posts":                "post_id",
	"comments":             "comment_id",
	"direct_messages":      "message_id",
	"group_chats":          "message_id",
	"coin_purchases":       "purchase_id",
	"favorite_collections": "collection_id",
	"favorite_comments":    "favorite_comment_id",
	"favorite_effects":     "effect_id",
	"favorite_hashtags":    "hashtag_id",
	"favorite_sounds":      "sound_id",
	"favorite_videos":      "video_id",
	"liked_videos":         "like_id",
	"deleted_posts":        "post_id",
	"blocked_users":        "block_id",
	"followers":            "follower_id",
	"following":            "following_id",
	"live_sessions":        "live_id",
	"watched_lives":        "watch_id",
	"live_comments":        "comment_id",
	"login_history":        "login_id",
	"user_hashtags":        "hashtag_id",
	"searches":             "search_id",
	"reposts":              "repost_id",
	"share_history":        "share_id",
	"sent_gifts":           "gift_id",
	"purchased_gifts":      "purchase_id",
	"product_browsing":     "browse_id",
}

// PrimaryKey returns the primary-key column of table. Unknown tables drop their
// last character and get an "_id" suffix ("widgets" -> "widget_id").
func PrimaryKey(table string) string {
	if pk, ok := primaryKeys[table]; ok {
		return pk
	}
	if table == "" {
		return "_id"
	}
	r := []rune(table)
	return string(r[:len(r)-1]) + "_id"
}
